package llm

import (
	"math"
	"math/rand"
	"time"
)

// SamplerStage rewrites logits in place before the final draw.
type SamplerStage interface {
	Name() string
	Apply(logits []float32, history []Token)
}

// Sampler is the pure-Go sampling pipeline used by in-process runtimes.
// Penalties must see the raw logits, so the stage order is fixed at construction.
type Sampler struct {
	stages  []SamplerStage
	rng     *rand.Rand
	history []Token
	window  int
	prob    []float64
}

// NewSampler builds the chain penalties -> temperature -> draw.
func NewSampler(p SamplerParams) *Sampler {
	seed := int64(p.Seed)
	if p.Seed == 0 {
		seed = time.Now().UnixNano()
	}
	window := p.RepeatLastN
	if window <= 0 {
		window = 64
	}
	return &Sampler{
		stages: []SamplerStage{
			penaltyStage{lastN: window, repeat: p.RepeatPenalty, frequency: p.FrequencyPenalty, presence: p.PresencePenalty},
			temperatureStage{temp: p.Temperature},
		},
		rng:    rand.New(rand.NewSource(seed)),
		window: window,
	}
}

// Stages returns the stage names in execution order, ending with the draw.
func (s *Sampler) Stages() []string {
	names := make([]string, 0, len(s.stages)+1)
	for _, st := range s.stages {
		names = append(names, st.Name())
	}
	return append(names, "dist")
}

// Sample runs every stage over a copy of logits, draws a token and accepts it.
func (s *Sampler) Sample(logits []float32) Token {
	if len(logits) == 0 {
		return 0
	}
	work := append([]float32(nil), logits...)
	for _, st := range s.stages {
		st.Apply(work, s.history)
	}
	tok := s.draw(work)
	s.Accept(tok)
	return tok
}

// Accept records tok in the penalty window.
func (s *Sampler) Accept(tok Token) {
	s.history = append(s.history, tok)
	if over := len(s.history) - s.window; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// Reset forgets the penalty history.
func (s *Sampler) Reset() { s.history = s.history[:0] }

func (s *Sampler) draw(logits []float32) Token {
	maxv := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxv {
			maxv = v
		}
	}
	if math.IsInf(float64(maxv), -1) {
		return 0
	}
	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
	}
	prob := s.prob[:len(logits)]
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxv))
		prob[i] = e
		sum += e
	}
	r := s.rng.Float64() * sum
	for i, p := range prob {
		r -= p
		if r < 0 {
			return Token(i)
		}
	}
	return Token(len(prob) - 1)
}

// penaltyStage applies repeat, frequency and presence penalties over the last
// lastN accepted tokens.
type penaltyStage struct {
	lastN     int
	repeat    float32
	frequency float32
	presence  float32
}

func (penaltyStage) Name() string { return "penalties" }

func (p penaltyStage) Apply(logits []float32, history []Token) {
	if len(history) == 0 {
		return
	}
	window := history[max(len(history)-p.lastN, 0):]
	counts := make(map[Token]int, len(window))
	for _, t := range window {
		counts[t]++
	}
	for tok, n := range counts {
		if tok < 0 || int(tok) >= len(logits) {
			continue
		}
		v := logits[tok]
		if p.repeat > 0 && p.repeat != 1 {
			if v > 0 {
				v /= p.repeat
			} else {
				v *= p.repeat
			}
		}
		v -= float32(n)*p.frequency + p.presence
		logits[tok] = v
	}
}

// temperatureStage scales logits by 1/temp. A non-positive temperature keeps
// only the maximum, which makes the draw greedy.
type temperatureStage struct {
	temp float32
}

func (temperatureStage) Name() string { return "temperature" }

func (t temperatureStage) Apply(logits []float32, _ []Token) {
	if t.temp <= 0 {
		best := 0
		for i, v := range logits {
			if v > logits[best] {
				best = i
			}
		}
		for i := range logits {
			if i != best {
				logits[i] = float32(math.Inf(-1))
			}
		}
		return
	}
	inv := 1 / t.temp
	for i := range logits {
		logits[i] *= inv
	}
}
