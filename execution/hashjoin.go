package execution

import (
	"io"

	"github.com/pkg/errors"

	"github.com/mkihara/harudb/common"
	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/tuple"
)

// HashJoinExecutor is a blocking build-then-probe equi-join with both
// sides materialized: Init drains the left child into a hash map keyed by
// the left join expression, probes it with every right row, and
// materializes the joined output rows. Next replays them in the order they
// were produced (right rows in child order, each paired with its matching
// left rows in child order), which makes the output deterministic across
// runs. Nothing spills: the left side and the output must fit in memory.
type HashJoinExecutor struct {
	ctx   *Context
	plan  *plan.HashJoinPlan
	left  Executor
	right Executor

	results []*tuple.Tuple
	pos     int
}

// NewHashJoinExecutor builds a join of the two children
func NewHashJoinExecutor(ctx *Context, p *plan.HashJoinPlan, left, right Executor) *HashJoinExecutor {
	return &HashJoinExecutor{ctx: ctx, plan: p, left: left, right: right}
}

func (e *HashJoinExecutor) Init() error {
	if err := e.left.Init(); err != nil {
		return err
	}
	if err := e.right.Init(); err != nil {
		return err
	}

	// build: left rows bucketed by join key value
	buckets := make(map[tuple.Value][]*tuple.Tuple)
	for {
		lt, _, err := e.left.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "join left child failed")
		}
		key, err := e.plan.LeftKeyExpr.Evaluate(lt, e.plan.LeftSchema)
		if err != nil {
			return err
		}
		buckets[key] = append(buckets[key], lt)
	}

	// probe: every right row against its bucket
	e.results = e.results[:0]
	e.pos = 0
	for {
		rt, _, err := e.right.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "join right child failed")
		}
		key, err := e.plan.RightKeyExpr.Evaluate(rt, e.plan.RightSchema)
		if err != nil {
			return err
		}
		for _, lt := range buckets[key] {
			values := make([]tuple.Value, 0, len(e.plan.OutputExprs))
			for _, ex := range e.plan.OutputExprs {
				v, err := ex.EvaluateJoin(lt, e.plan.LeftSchema, rt, e.plan.RightSchema)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
			e.results = append(e.results, tuple.NewTuple(values...))
		}
	}
	return nil
}

func (e *HashJoinExecutor) Next() (*tuple.Tuple, common.RID, error) {
	if e.pos >= len(e.results) {
		return nil, common.RID{}, io.EOF
	}
	out := e.results[e.pos]
	e.pos++
	return out, out.RID(), nil
}
