package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"sd_backend/core"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// DeviceResolver maps the configured SD_DEVICE value to the device the
// inference backend will actually use.
type DeviceResolver func(requested string) (string, error)

// ValidationSuite runs the startup checks for the image service: the models
// tree, the output tree, free disk space and the compute device. Results
// are printed as colored progress lines.
type ValidationSuite struct {
	output        io.Writer
	cfg           *core.Config
	resolveDevice DeviceResolver
	minFreeBytes  int64
	showProgress  bool
	failFast      bool
}

// NewValidationSuite creates a ValidationSuite for cfg with default settings.
func NewValidationSuite(cfg *core.Config) *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		cfg:          cfg,
		minFreeBytes: MinOutputFreeBytes,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithDeviceResolver sets the function used by the compute device check.
// Without one the check is skipped.
func (s *ValidationSuite) WithDeviceResolver(fn DeviceResolver) *ValidationSuite {
	s.resolveDevice = fn
	return s
}

// WithMinFreeBytes overrides the free space required in the output directory.
func (s *ValidationSuite) WithMinFreeBytes(n int64) *ValidationSuite {
	s.minFreeBytes = n
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// Validate runs all checks in sequence with progress output.
func (s *ValidationSuite) Validate() SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, 4)

	if s.showProgress {
		s.printHeader("Image Service Startup Validation")
	}

	// Step 1: models tree
	step := s.runStep("Models Directory", func() (StepStatus, string, error) {
		present, err := CheckModelsDir(s.cfg.ModelsDir)
		if err != nil {
			return StepFailed, "", err
		}
		if len(present) == 0 {
			return StepWarning, fmt.Sprintf("%s has no checkpoints/, loras/ or vaes/ folder", s.cfg.ModelsDir), nil
		}
		return StepPassed, fmt.Sprintf("%s (%s)", s.cfg.ModelsDir, strings.Join(present, ", ")), nil
	})
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.finish(steps, startTime)
	}

	// Step 2: output tree
	outputStep := s.runStep("Output Directory", func() (StepStatus, string, error) {
		for _, dir := range []string{s.cfg.ImagesDir(), s.cfg.ThumbnailsDir()} {
			if err := CheckDirWritable(dir); err != nil {
				return StepFailed, "", core.ErrDirectoryUnusable(dir, err)
			}
		}
		return StepPassed, s.cfg.OutputDir + " is writable", nil
	})
	steps = append(steps, outputStep)
	if s.failFast && outputStep.Status == StepFailed {
		return s.finish(steps, startTime)
	}

	// Step 3: disk space (only if the output tree exists)
	if outputStep.Status == StepPassed {
		step = s.runStep("Disk Space", func() (StepStatus, string, error) {
			info, err := CheckDiskSpace(s.cfg.OutputDir, s.minFreeBytes)
			if err != nil {
				return StepFailed, "", err
			}
			return StepPassed, fmt.Sprintf("%s free of %s", info.FreeFormatted, info.TotalFormatted), nil
		})
	} else {
		step = s.skipStep("Disk Space", "Skipped due to output directory errors")
	}
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.finish(steps, startTime)
	}

	// Step 4: compute device
	if s.resolveDevice != nil {
		step = s.runStep("Compute Device", func() (StepStatus, string, error) {
			resolved, err := s.resolveDevice(s.cfg.Device)
			if err != nil {
				return StepFailed, "", err
			}
			if s.cfg.Device == core.DeviceAuto && resolved == core.DeviceCPU {
				return StepWarning, "no CUDA device found, generation will run on CPU", nil
			}
			return StepPassed, resolved, nil
		})
	} else {
		step = s.skipStep("Compute Device", "No device resolver configured")
	}
	steps = append(steps, step)

	return s.finish(steps, startTime)
}

func (s *ValidationSuite) finish(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) skipStep(name, message string) ValidationStep {
	step := ValidationStep{Name: name, Status: StepSkipped, Message: message}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() (StepStatus, string, error)) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	status, message, err := fn()
	step.Latency = time.Since(startTime)
	step.Status = status
	step.Message = message
	step.Error = err

	if s.showProgress {
		s.printStep(step)
	}

	return step
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

// printHeader prints a validation header.
func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStepStart prints the step name before execution (for real-time feedback).
func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// Clear the "running" line and print result
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	// Add message if present
	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}

	fmt.Fprintln(s.output)

	// Print error details for failed steps
	if step.Status == StepFailed && step.Error != nil {
		errColor := color.New(color.FgRed)
		errColor.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

// printSummary prints the validation summary.
func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetErrors returns all errors from failed steps.
func (r SuiteResult) GetErrors() []error {
	errs := make([]error, 0)
	for _, step := range r.Steps {
		if step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation %s: ", map[bool]string{true: "Passed", false: "Failed"}[r.Success]))
	sb.WriteString(fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
