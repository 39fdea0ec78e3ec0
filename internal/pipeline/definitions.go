// Package pipeline holds the static stage definitions and the dependency
// graph that decides which stages of a job may run and in what order.
package pipeline

import (
	"time"

	"github.com/videogen/orchestrator/pkg/models"
)

// Definition is the static, process-wide configuration of one stage.
// Shared read-only by all jobs; never mutated after process start.
type Definition struct {
	Name         models.StageName
	Predecessors []models.StageName
	// Timeout bounds a single collaborator attempt. A call exceeding it is a
	// retryable failure with reason "timeout".
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// Estimate is the typical wall-clock duration of the stage, used for
	// the estimated_completion hint on submission.
	Estimate time.Duration
	// MaxConcurrent caps in-flight collaborator calls for this stage across
	// all jobs. Zero means the global default applies.
	MaxConcurrent int64
}

// Overrides adjusts the retry policy applied to every default definition.
// Zero values keep the built-in defaults.
type Overrides struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// DefaultDefinitions returns the stage topology in declared pipeline order:
//
//	validation -> language_detection -> translation -> scene_analysis ->
//	storyboard -> {character_generation, keyframe_generation} ->
//	video_generation; voiceover_generation (after translation);
//	composition (after video_generation and voiceover_generation).
func DefaultDefinitions(ov Overrides) []Definition {
	retries := ov.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	backoff := ov.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	def := func(name models.StageName, timeout, estimate time.Duration, concurrent int64, preds ...models.StageName) Definition {
		return Definition{
			Name:          name,
			Predecessors:  preds,
			Timeout:       timeout,
			MaxRetries:    retries,
			RetryBackoff:  backoff,
			Estimate:      estimate,
			MaxConcurrent: concurrent,
		}
	}

	return []Definition{
		def(models.StageValidation, 10*time.Second, time.Second, 16),
		def(models.StageLanguageDetection, 15*time.Second, 2*time.Second, 8,
			models.StageValidation),
		def(models.StageTranslation, 30*time.Second, 5*time.Second, 8,
			models.StageLanguageDetection),
		def(models.StageSceneAnalysis, 60*time.Second, 10*time.Second, 4,
			models.StageTranslation),
		def(models.StageStoryboard, 60*time.Second, 10*time.Second, 4,
			models.StageSceneAnalysis),
		def(models.StageCharacterGeneration, 120*time.Second, 30*time.Second, 2,
			models.StageStoryboard),
		def(models.StageKeyframeGeneration, 120*time.Second, 30*time.Second, 2,
			models.StageStoryboard),
		def(models.StageVideoGeneration, 300*time.Second, 90*time.Second, 2,
			models.StageCharacterGeneration, models.StageKeyframeGeneration),
		def(models.StageVoiceoverGeneration, 120*time.Second, 20*time.Second, 2,
			models.StageTranslation),
		def(models.StageComposition, 180*time.Second, 30*time.Second, 2,
			models.StageVideoGeneration, models.StageVoiceoverGeneration),
	}
}
