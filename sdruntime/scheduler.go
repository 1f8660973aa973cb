package sdruntime

// Sampler is the closed set of sampler names clients may request.
type Sampler int

const (
	// SamplerDefault keeps whatever scheduler the pipeline currently has.
	// Unknown names map here.
	SamplerDefault Sampler = iota
	SamplerDPMPP2MKarras
	SamplerEulerAncestral
	SamplerEuler
	SamplerLMS
	SamplerDDIM
)

// DefaultSamplerName is the sampler requests use when they name none.
const DefaultSamplerName = "DPM++ 2M Karras"

var samplerNames = map[string]Sampler{
	"DPM++ 2M Karras": SamplerDPMPP2MKarras,
	"Euler a":         SamplerEulerAncestral,
	"Euler":           SamplerEuler,
	"LMS":             SamplerLMS,
	"DDIM":            SamplerDDIM,
}

// ParseSampler maps a client-facing sampler name to a Sampler. Matching is
// exact and case-sensitive; anything else is SamplerDefault.
func ParseSampler(name string) Sampler {
	if s, ok := samplerNames[name]; ok {
		return s
	}
	return SamplerDefault
}

func (s Sampler) String() string {
	switch s {
	case SamplerDPMPP2MKarras:
		return "DPM++ 2M Karras"
	case SamplerEulerAncestral:
		return "Euler a"
	case SamplerEuler:
		return "Euler"
	case SamplerLMS:
		return "LMS"
	case SamplerDDIM:
		return "DDIM"
	default:
		return "default"
	}
}

// SamplerNames lists the recognized names in display order.
func SamplerNames() []string {
	return []string{"DPM++ 2M Karras", "Euler a", "Euler", "LMS", "DDIM"}
}

// SchedulerKind identifies a noise scheduler algorithm.
type SchedulerKind string

const (
	SchedulerPNDM           SchedulerKind = "pndm"
	SchedulerDPMSolver      SchedulerKind = "dpm_solver_multistep"
	SchedulerEulerAncestral SchedulerKind = "euler_ancestral"
	SchedulerEuler          SchedulerKind = "euler"
	SchedulerLMS            SchedulerKind = "lms"
	SchedulerDDIM           SchedulerKind = "ddim"
)

// SchedulerConfig is the scheduler a pipeline runs with. The base fields
// describe the model's noise schedule and are carried over unchanged
// whenever the algorithm is switched.
type SchedulerConfig struct {
	Kind         SchedulerKind `json:"kind"`
	KarrasSigmas bool          `json:"karras_sigmas,omitempty"`

	TrainTimesteps int     `json:"num_train_timesteps"`
	BetaStart      float64 `json:"beta_start"`
	BetaEnd        float64 `json:"beta_end"`
	BetaSchedule   string  `json:"beta_schedule"`
	PredictionType string  `json:"prediction_type"`
}

// DefaultSchedulerConfig is the schedule Stable Diffusion checkpoints ship
// with: PNDM over a scaled-linear beta schedule.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Kind:           SchedulerPNDM,
		TrainTimesteps: 1000,
		BetaStart:      0.00085,
		BetaEnd:        0.012,
		BetaSchedule:   "scaled_linear",
		PredictionType: "epsilon",
	}
}

// SelectScheduler builds the scheduler for sampler from the base
// configuration of current. SamplerDefault returns current unchanged.
func SelectScheduler(sampler Sampler, current SchedulerConfig) SchedulerConfig {
	next := current
	next.KarrasSigmas = false

	switch sampler {
	case SamplerDPMPP2MKarras:
		next.Kind = SchedulerDPMSolver
		next.KarrasSigmas = true
	case SamplerEulerAncestral:
		next.Kind = SchedulerEulerAncestral
	case SamplerEuler:
		next.Kind = SchedulerEuler
	case SamplerLMS:
		next.Kind = SchedulerLMS
	case SamplerDDIM:
		next.Kind = SchedulerDDIM
	default:
		return current
	}
	return next
}
