// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"code.hybscloud.com/cellflow"
	"code.hybscloud.com/cellflow/tensor"
)

type demo func(w io.Writer) error

var demos = map[string]demo{
	"for-loop":   forLoopDemo,
	"while-loop": whileLoopDemo,
	"cond":       condDemo,
	"ifelse":     ifElseDemo,
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "demo {" + strings.Join(demoNames(), "|") + "}",
		Short:     "Run a combinator example",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: demoNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return demos[args[0]](cmd.OutOrStdout())
		},
	}
}

// forLoopDemo accumulates a running sum into a Variable.
func forLoopDemo(w io.Writer) error {
	a := cellflow.MustVariable(tensor.Float32s(0), cellflow.WithName("a"))
	ys, err := cellflow.ForLoop(func(args ...any) (any, error) {
		if err := a.Update(tensor.Add(a.Value(), args[0])); err != nil {
			return nil, err
		}
		return a.Value(), nil
	}, tensor.Float32s(1, 2, 3, 4))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "outputs: %v\n", ys)
	fmt.Fprintf(w, "a:       %v\n", a.Value())
	return nil
}

// whileLoopDemo updates two Variables until the first operand reaches 6.
func whileLoopDemo(w io.Writer) error {
	a := cellflow.MustVariable(tensor.Float32s(0), cellflow.WithName("a"))
	b := cellflow.MustVariable(tensor.Float32s(1), cellflow.WithName("b"))
	out, err := cellflow.WhileLoop(func(args ...any) (any, error) {
		x, y := args[0], args[1]
		if err := a.Update(tensor.Add(a.Value(), x)); err != nil {
			return nil, err
		}
		if err := b.Update(tensor.Mul(b.Value(), y)); err != nil {
			return nil, err
		}
		return []any{tensor.Add(x, tensor.Index(b.Value(), 0)), tensor.Add(y, 1)}, nil
	}, func(args ...any) (any, error) {
		return tensor.Less(args[0], 6), nil
	}, []any{1.0, 1.0})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "operands: %v\n", out)
	fmt.Fprintf(w, "a: %v\nb: %v\n", a.Value(), b.Value())
	return nil
}

// condDemo runs one conditional per predicate; only the chosen branch
// mutates its Variable.
func condDemo(w io.Writer) error {
	a := cellflow.MustVariable(tensor.Float32s(0, 0), cellflow.WithName("a"))
	b := cellflow.MustVariable(tensor.Float32s(1, 1), cellflow.WithName("b"))
	c, err := cellflow.MakeCond(cellflow.Func(func(...any) (any, error) {
		return nil, a.Update(tensor.Add(a.Value(), 1))
	}), cellflow.Func(func(...any) (any, error) {
		return nil, b.Update(tensor.Sub(b.Value(), 1))
	}))
	if err != nil {
		return err
	}
	for _, pred := range []bool{true, false} {
		if _, err := c.Call(pred, nil); err != nil {
			return err
		}
		fmt.Fprintf(w, "pred=%v a=%v b=%v\n", pred, a.Value(), b.Value())
	}
	return nil
}

// ifElseDemo picks the branch of the first true condition.
func ifElseDemo(w io.Writer) error {
	for _, v := range []float64{1, 3, 7, 11} {
		a := tensor.Scalar(tensor.Float32, v)
		r, err := cellflow.IfElse(
			[]any{tensor.Greater(a, 10), tensor.Greater(a, 5), tensor.Greater(a, 2), tensor.Greater(a, 0)},
			[]any{1, 2, 3, 4, 5},
			nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "a=%v -> %v\n", v, r)
	}
	return nil
}
