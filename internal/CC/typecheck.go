package CC

import (
	"github.com/cockroachdb/errors"

	"github.com/querypipe/querypipe/internal/PL"
)

// checkPlanTypes walks the plan bottom-up and type-checks every
// expression against its input schema before any code is generated.
// Failures abort compilation and name the offending node; they are
// never deferred to runtime.
func checkPlanTypes(n PL.Node) error {
	for _, child := range n.Children() {
		if err := checkPlanTypes(child); err != nil {
			return err
		}
	}
	switch x := n.(type) {
	case *PL.SeqScan:
		return checkPredicate(x.Predicate, x.TableSchema, x.Kind())
	case *PL.Projection:
		in := x.Input.Schema()
		for i, e := range x.Exprs {
			if _, err := PL.TypeOf(e, in); err != nil {
				return errors.Wrapf(err, "%s expression %d", x.Kind(), i)
			}
		}
	case *PL.Aggregate:
		in := x.Input.Schema()
		for i, g := range x.GroupBy {
			if _, err := PL.TypeOf(g, in); err != nil {
				return errors.Wrapf(err, "%s group key %d", x.Kind(), i)
			}
		}
		for i, sp := range x.Aggs {
			if sp.Kind == PL.AggCountStar || sp.Arg == nil {
				continue
			}
			t, err := PL.TypeOf(sp.Arg, in)
			if err != nil {
				return errors.Wrapf(err, "%s argument %d", x.Kind(), i)
			}
			switch sp.Kind {
			case PL.AggSum, PL.AggAvg:
				if !t.Numeric() {
					return errors.Newf("%s over non-numeric argument of type %s", sp.Kind, t)
				}
			}
		}
	case *PL.OrderBy:
		in := x.Input.Schema()
		for i, k := range x.Keys {
			if _, err := PL.TypeOf(k.Expr, in); err != nil {
				return errors.Wrapf(err, "%s key %d", x.Kind(), i)
			}
		}
	case *PL.HashJoin:
		if len(x.BuildKeys) != len(x.ProbeKeys) {
			return errors.Newf("%s with %d build keys but %d probe keys",
				x.Kind(), len(x.BuildKeys), len(x.ProbeKeys))
		}
		for i := range x.BuildKeys {
			bt, err := PL.TypeOf(x.BuildKeys[i], x.Build.Schema())
			if err != nil {
				return errors.Wrapf(err, "%s build key %d", x.Kind(), i)
			}
			pt, err := PL.TypeOf(x.ProbeKeys[i], x.Probe.Schema())
			if err != nil {
				return errors.Wrapf(err, "%s probe key %d", x.Kind(), i)
			}
			if bt != pt && !(bt.Numeric() && pt.Numeric()) {
				return errors.Newf("%s key %d joins incompatible types %s and %s",
					x.Kind(), i, bt, pt)
			}
		}
	case *PL.NestLoopJoin:
		return checkPredicate(x.Predicate, x.Schema(), x.Kind())
	case *PL.Update:
		in := x.Input.Schema()
		for i, e := range x.SetExprs {
			t, err := PL.TypeOf(e, in)
			if err != nil {
				return errors.Wrapf(err, "%s set expression %d", x.Kind(), i)
			}
			if i >= len(x.SetCols) {
				continue // arity mismatch reported by the update translator
			}
			c := x.SetCols[i]
			if c < 0 || c >= in.Width() {
				continue // range reported by the update translator
			}
			ct := in.Cols[c].Type
			if t != ct && !(t.Numeric() && ct.Numeric()) {
				return errors.Newf("%s assigns %s to column %q of type %s",
					x.Kind(), t, in.Cols[c].Name, ct)
			}
		}
	}
	return nil
}

func checkPredicate(pred PL.Expr, in *PL.Schema, kind PL.NodeKind) error {
	if pred == nil {
		return nil
	}
	t, err := PL.TypeOf(pred, in)
	if err != nil {
		return errors.Wrapf(err, "%s predicate", kind)
	}
	if t != PL.TypeBool {
		return errors.Newf("%s predicate must be bool, got %s", kind, t)
	}
	return nil
}
