// Package learning implements the Q-learning optimizer that tunes strategy
// choice over time. It maintains a persistent value table over
// (state-signature, action) pairs, recommends actions epsilon-greedily and
// updates values from recorded outcomes with a bounded reward.
//
// The optimizer never blocks the critical path: recommendation failures and
// persistence failures both degrade to "no recommendation available".
package learning

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reward shaping constants. Heuristic defaults, tunable via review rather
// than config: reward inputs stay within [-5, +13] so values converge under
// the bounded learning rate.
const (
	rewardSuccess       = 10.0
	rewardFailure       = -5.0
	confidenceBonusMul  = 3.0
	ruleEfficiencyBonus = 2.0
	slowPenalty         = -1.0
	slowThreshold       = time.Second
	rewardMin           = -5.0
	rewardMax           = 13.0
)

// persistInterval debounces table flushes on top of the SaveEvery counter.
const persistInterval = 2 * time.Second

const (
	keyTable       = "learning/qtable"
	keyExperiences = "learning/experiences"
)

// experience is one raw (state, action, outcome) tuple in the persisted log.
type experience struct {
	State   schemas.QState  `json:"state"`
	Action  schemas.QAction `json:"action"`
	Success bool            `json:"success"`
	Reward  float64         `json:"reward"`
	At      time.Time       `json:"at"`
}

// Optimizer implements schemas.Optimizer.
type Optimizer struct {
	cfg     config.LearningConfig
	storage schemas.Storage // nil means memory-only
	logger  *zap.Logger

	mu          sync.Mutex
	table       map[string]map[schemas.QAction]float64
	experiences []experience
	sinceFlush  int
	ready       bool

	limiter *rate.Limiter
	rng     *rand.Rand
}

// New creates an optimizer. Call Initialize before first use; an
// uninitialized optimizer reports Ready() == false and the coordinator then
// forces rule-only processing.
func New(cfg config.LearningConfig, storage schemas.Storage, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		cfg:     cfg,
		storage: storage,
		logger:  logger.Named("Learning"),
		table:   make(map[string]map[schemas.QAction]float64),
		limiter: rate.NewLimiter(rate.Every(persistInterval), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initialize loads the persisted table and experience log. Load failures are
// logged and leave the optimizer ready with an empty table; only a disabled
// config keeps it unready.
func (o *Optimizer) Initialize(ctx context.Context) error {
	if !o.cfg.Enabled {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.storage != nil {
		if raw, found, err := o.storage.Get(ctx, keyTable); err != nil {
			o.logger.Warn("Q-table load failed; starting empty", zap.Error(err))
		} else if found {
			if err := json.Unmarshal(raw, &o.table); err != nil {
				o.logger.Warn("Corrupt Q-table dropped", zap.Error(err))
				o.table = make(map[string]map[schemas.QAction]float64)
			}
		}
		if raw, found, err := o.storage.Get(ctx, keyExperiences); err != nil {
			o.logger.Warn("Experience log load failed; starting empty", zap.Error(err))
		} else if found {
			if err := json.Unmarshal(raw, &o.experiences); err != nil {
				o.logger.Warn("Corrupt experience log dropped", zap.Error(err))
				o.experiences = nil
			}
		}
	}

	o.ready = true
	o.logger.Info("Learning optimizer initialized",
		zap.Int("states", len(o.table)),
		zap.Int("experiences", len(o.experiences)))
	return nil
}

// Ready reports whether the optimizer may be consulted.
func (o *Optimizer) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

// stateKey builds the compact table signature for a state.
func stateKey(s schemas.QState) string {
	fw := s.Framework
	if fw == "" {
		fw = "none"
	}
	return fmt.Sprintf("%s|%s|%d|%s", fw, s.Position, s.ActionBucket, s.Language)
}

// Recommend returns the preferred action for the state. With probability
// epsilon a uniformly random action is explored; otherwise the
// highest-valued action wins, ties broken by vocabulary order.
func (o *Optimizer) Recommend(ctx context.Context, state schemas.QState) (schemas.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Recommendation{}, fmt.Errorf("%w: %v", schemas.ErrNoRecommendation, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready {
		return schemas.Recommendation{}, schemas.ErrNoRecommendation
	}

	if o.rng.Float64() < o.cfg.Epsilon {
		action := schemas.ActionVocabulary[o.rng.Intn(len(schemas.ActionVocabulary))]
		return schemas.Recommendation{Action: action, Confidence: 0.3, Explored: true}, nil
	}

	values := o.table[stateKey(state)]
	best := schemas.ActionVocabulary[0]
	bestQ := values[best]
	for _, a := range schemas.ActionVocabulary[1:] {
		if q := values[a]; q > bestQ {
			best, bestQ = a, q
		}
	}
	return schemas.Recommendation{Action: best, Confidence: confidenceFor(bestQ)}, nil
}

// RecordExperience applies the bounded value update
// Q <- Q + alpha*(reward - Q) and appends the tuple to the capped raw log.
// The table is flushed every SaveEvery experiences, debounced.
func (o *Optimizer) RecordExperience(ctx context.Context, state schemas.QState, action schemas.QAction, outcome schemas.ProcessingOutcome) {
	reward := shapeReward(action, outcome)

	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return
	}
	key := stateKey(state)
	if o.table[key] == nil {
		o.table[key] = make(map[schemas.QAction]float64)
	}
	q := o.table[key][action]
	o.table[key][action] = q + o.cfg.LearningRate*(reward-q)

	o.experiences = append(o.experiences, experience{
		State:   state,
		Action:  action,
		Success: outcome.Success,
		Reward:  reward,
		At:      outcome.At,
	})
	if limit := o.cfg.ExperienceCap; limit > 0 && len(o.experiences) > limit {
		o.experiences = o.experiences[len(o.experiences)-limit:]
	}

	o.sinceFlush++
	flush := o.cfg.SaveEvery > 0 && o.sinceFlush >= o.cfg.SaveEvery
	if flush {
		o.sinceFlush = 0
	}
	o.mu.Unlock()

	if flush && o.limiter.Allow() {
		o.persist(ctx)
	}
}

// Flush forces the table and log out to storage. Called on teardown.
func (o *Optimizer) Flush(ctx context.Context) {
	o.persist(ctx)
}

func (o *Optimizer) persist(ctx context.Context) {
	if o.storage == nil {
		return
	}
	o.mu.Lock()
	tableRaw, tErr := json.Marshal(o.table)
	expRaw, eErr := json.Marshal(o.experiences)
	o.mu.Unlock()

	if tErr != nil || eErr != nil {
		o.logger.Warn("Learning state marshal failed",
			zap.NamedError("table", tErr), zap.NamedError("experiences", eErr))
		return
	}
	if err := o.storage.Set(ctx, keyTable, tableRaw); err != nil {
		o.logger.Warn("Q-table persist failed; keeping in memory", zap.Error(err))
	}
	if err := o.storage.Set(ctx, keyExperiences, expRaw); err != nil {
		o.logger.Warn("Experience log persist failed; keeping in memory", zap.Error(err))
	}
}

// shapeReward maps an outcome to the bounded reward signal.
func shapeReward(action schemas.QAction, outcome schemas.ProcessingOutcome) float64 {
	var reward float64
	if outcome.Success {
		reward = rewardSuccess
	} else {
		reward = rewardFailure
	}
	reward += outcome.Confidence * confidenceBonusMul
	if outcome.Success && action == schemas.ActionRuleBasedPrimary {
		reward += ruleEfficiencyBonus
	}
	if outcome.Duration > slowThreshold {
		reward += slowPenalty
	}

	if reward < rewardMin {
		reward = rewardMin
	}
	if reward > rewardMax {
		reward = rewardMax
	}
	return reward
}

// confidenceFor maps a Q value into [0,1] across the reward range, so a
// fresh table yields a mid-low confidence instead of zero.
func confidenceFor(q float64) float64 {
	c := (q - rewardMin) / (rewardMax - rewardMin)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
