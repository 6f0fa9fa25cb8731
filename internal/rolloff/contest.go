package rolloff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rolloff/internal/domain/draw"
	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/pkg/logger"
	"github.com/okian/rolloff/pkg/metrics"
)

// Default contest configuration constants.
const (
	defaultDieFaces       = 20
	defaultSolicitTimeout = 30 * time.Second

	// rerollSuffix derives the contest id of a recursive sub-contest so
	// it stays correlatable on the broadcast channel.
	rerollSuffix = "-reroll"
)

// Outcome is the result of one contest, after any recursive rerolls.
type Outcome struct {
	Winner  model.ContestResult
	Losers  []model.ContestResult
	Results []model.ContestResult // every entrant's latest accepted draw, input order
	Rerolls int                   // number of recursive sub-contests it took
}

// ContestRunner resolves one pairwise contest: it solicits a draw from each
// entrant's owner (or draws locally), compares totals, and recurses when
// the maxima tie. It is the innermost resolution primitive reused by the
// pair topology and by every bracket match.
type ContestRunner struct {
	gateway Gateway
	roller  draw.Roller
	faces   int
	timeout time.Duration
	logger  logger.Logger
}

// RunnerOption applies a configuration option to the ContestRunner.
type RunnerOption func(*ContestRunner)

// WithDieFaces sets the die size used for every draw.
func WithDieFaces(faces int) RunnerOption {
	return func(r *ContestRunner) {
		if faces >= draw.MinFaces {
			r.faces = faces
		}
	}
}

// WithSolicitTimeout bounds how long a remote owner may take per draw.
func WithSolicitTimeout(d time.Duration) RunnerOption {
	return func(r *ContestRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRunnerLogger sets a custom logger for the runner.
func WithRunnerLogger(l logger.Logger) RunnerOption {
	return func(r *ContestRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewContestRunner creates a contest runner with configuration options.
func NewContestRunner(gw Gateway, roller draw.Roller, opts ...RunnerOption) *ContestRunner {
	r := &ContestRunner{
		gateway: gw,
		roller:  roller,
		faces:   defaultDieFaces,
		timeout: defaultSolicitTimeout,
		logger:  logger.Named("contest"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resolves a contest among the given entities.
//
// Every entrant is solicited concurrently and the contest waits for all of
// them; a slow or absent owner triggers a local fallback draw, never a
// contest-wide abort. If two or more entrants share the maximum total the
// tied subset rerolls in a sub-contest with a derived id; recursion depth
// is unbounded, which is accepted probabilistic behavior.
func (r *ContestRunner) Run(ctx context.Context, entities []model.Entity, contestID string) (Outcome, error) {
	if len(entities) < 2 {
		return Outcome{}, fmt.Errorf("%w: got %d", ErrTooFewEntrants, len(entities))
	}

	start := time.Now()
	metrics.RecordContestStarted()
	defer func() {
		metrics.RecordContestDuration(float64(time.Since(start).Milliseconds()))
	}()

	results := make([]model.ContestResult, len(entities))
	var wg sync.WaitGroup
	for i, e := range entities {
		wg.Add(1)
		go func(i int, e model.Entity) {
			defer wg.Done()
			results[i] = r.collect(ctx, e, contestID)
		}(i, e)
	}
	wg.Wait()

	max := results[0].Draw.Total
	for _, res := range results[1:] {
		if res.Draw.Total > max {
			max = res.Draw.Total
		}
	}

	var tied []model.Entity
	for _, res := range results {
		if res.Draw.Total == max {
			tied = append(tied, res.Entity)
		}
	}

	if len(tied) == 1 {
		out := Outcome{Results: results}
		for _, res := range results {
			if res.Draw.Total == max {
				out.Winner = res
			} else {
				out.Losers = append(out.Losers, res)
			}
		}
		return out, nil
	}

	// Tie within the tie: reroll among exactly the tied entrants. The
	// winner of the sub-contest wins the outer contest.
	r.logger.Info(ctx, "contest tied, rerolling",
		logger.String("contestID", contestID),
		logger.Int("tied", len(tied)),
		logger.Int("total", max),
	)
	metrics.RecordReroll()

	sub, err := r.Run(ctx, tied, contestID+rerollSuffix)
	if err != nil {
		return Outcome{}, err
	}

	merged := mergeResults(results, sub.Results)
	out := Outcome{
		Winner:  sub.Winner,
		Results: merged,
		Rerolls: sub.Rerolls + 1,
	}
	for _, res := range merged {
		if res.Entity.ID != sub.Winner.Entity.ID {
			out.Losers = append(out.Losers, res)
		}
	}
	return out, nil
}

// collect obtains one accepted draw for the entity: remote when it has an
// owner, local otherwise, local fallback on any remote failure. The
// accepted draw is recorded and broadcast before returning.
func (r *ContestRunner) collect(ctx context.Context, e model.Entity, contestID string) model.ContestResult {
	res := model.ContestResult{Entity: e}

	if e.Owner.None() {
		res.Draw = r.localDraw(ctx, e, contestID)
		metrics.RecordDraw(metrics.DrawLocal)
	} else {
		solicitCtx, cancel := context.WithTimeout(ctx, r.timeout)
		d, err := r.gateway.SolicitDraw(solicitCtx, e.Owner, SolicitRequest{
			ContestID: contestID,
			EntityID:  e.ID,
			Faces:     r.faces,
		})
		cancel()
		switch {
		case err == nil:
			res.Draw = d
			metrics.RecordDraw(metrics.DrawRemote)
		case errors.Is(err, context.DeadlineExceeded):
			r.logger.Warn(ctx, "owner timed out, drawing locally",
				logger.String("contestID", contestID),
				logger.String("entityID", string(e.ID)),
				logger.String("owner", string(e.Owner)),
			)
			res.Draw = r.localDraw(ctx, e, contestID)
			res.Fallback = true
			metrics.RecordDraw(metrics.DrawFallbackTimeout)
		default:
			r.logger.Warn(ctx, "owner request failed, drawing locally",
				logger.String("contestID", contestID),
				logger.String("entityID", string(e.ID)),
				logger.Error(err),
			)
			res.Draw = r.localDraw(ctx, e, contestID)
			res.Fallback = true
			metrics.RecordDraw(metrics.DrawFallbackError)
		}
	}

	// Permanent roll record, fire and forget.
	r.logger.Info(ctx, "roll recorded",
		logger.String("contestID", contestID),
		logger.String("entityID", string(e.ID)),
		logger.Int("faces", res.Draw.Faces),
		logger.Int("total", res.Draw.Total),
		logger.Bool("fallback", res.Fallback),
	)

	r.gateway.Broadcast(ctx, Event{
		Name:      EventContestResult,
		ContestID: contestID,
		EntityID:  e.ID,
		Total:     res.Draw.Total,
		Fallback:  res.Fallback,
	})
	return res
}

// localDraw performs a non-interactive local draw. Fallback draws for
// remote failures and draws for unowned entities share this one semantic.
func (r *ContestRunner) localDraw(ctx context.Context, e model.Entity, contestID string) model.Draw {
	d, err := r.roller.Roll(r.faces)
	if err != nil {
		// Faces are validated at construction; treat this as a defect but
		// keep the contest alive with the minimum losing draw.
		r.logger.Error(ctx, "local draw failed",
			logger.String("contestID", contestID),
			logger.String("entityID", string(e.ID)),
			logger.Error(err),
		)
		return model.Draw{Faces: r.faces, Total: 1}
	}
	return d
}

// mergeResults overlays reroll results onto the base set, keeping base
// order. The latest accepted draw per entity wins.
func mergeResults(base, overlay []model.ContestResult) []model.ContestResult {
	latest := make(map[model.EntityID]model.ContestResult, len(overlay))
	for _, res := range overlay {
		latest[res.Entity.ID] = res
	}
	merged := make([]model.ContestResult, len(base))
	for i, res := range base {
		if over, ok := latest[res.Entity.ID]; ok {
			merged[i] = over
		} else {
			merged[i] = res
		}
	}
	return merged
}
