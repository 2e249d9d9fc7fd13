// Package providers abstracts external AI image-generation services behind a
// uniform "composite from reference images + instruction" contract, with
// retry/backoff and error classification per provider.
package providers

import (
	"context"
	"fmt"
)

// Kind selects the fixed directive sent alongside the reference images.
type Kind int

const (
	// KindSingleGarment renders one garment onto the subject.
	KindSingleGarment Kind = iota
	// KindCombinedOutfit renders all garments together as one outfit.
	KindCombinedOutfit
	// KindStyleRestyle re-renders an existing composite in a new setting.
	KindStyleRestyle
)

// Instruction is the generation directive. Style is only meaningful for
// KindStyleRestyle.
type Instruction struct {
	Kind  Kind
	Style string
}

// SingleGarment returns the single-garment try-on instruction.
func SingleGarment() Instruction { return Instruction{Kind: KindSingleGarment} }

// CombinedOutfit returns the multi-garment combined-outfit instruction.
func CombinedOutfit() Instruction { return Instruction{Kind: KindCombinedOutfit} }

// StyleRestyle returns the restyle instruction for the given style.
func StyleRestyle(style string) Instruction {
	return Instruction{Kind: KindStyleRestyle, Style: style}
}

var restyleSettings = map[string]string{
	"casual":      "a casual street setting with natural daylight and a relaxed mood",
	"formal":      "a formal office environment with professional lighting",
	"party":       "an evening party setting with warm ambient lighting and a festive background",
	"traditional": "a traditional festival setting with cultural decor and warm golden lighting",
}

// Directive returns the fixed natural-language instruction for this kind.
// Directives are not user-configurable.
func (in Instruction) Directive() string {
	switch in.Kind {
	case KindCombinedOutfit:
		return "You are a virtual try-on AI. Given the model photo (first image) " +
			"and the following garment photos, generate a single photorealistic image " +
			"of the model wearing ALL the garments together as a complete outfit. " +
			"Maintain the model's face, body, and pose exactly. Each garment should " +
			"look natural on the model with proper fit, wrinkles, and lighting. " +
			"Combine all garments into one cohesive outfit. Output only the final image."
	case KindStyleRestyle:
		setting, ok := restyleSettings[in.Style]
		if !ok {
			setting = fmt.Sprintf("a %s setting with appropriate lighting", in.Style)
		}
		return fmt.Sprintf("Show the outfit in this image in %s. "+
			"Keep the same person and the same garments; adjust only the background, "+
			"lighting, and overall mood. Output only the final image.", setting)
	default:
		return "You are a virtual try-on AI. Given the model photo (first image) " +
			"and the garment photo (second image), generate a photorealistic image " +
			"of the model wearing the garment. Maintain the model's face, body, " +
			"and pose exactly. The garment should look natural on the model with " +
			"proper fit, wrinkles, and lighting. Output only the final image."
	}
}

// Provider generates a composite image from a subject image, one or more
// garment images, and an instruction. Implementations return either one
// complete image or a typed *Error; results are never partial.
type Provider interface {
	Name() string
	Generate(ctx context.Context, subject []byte, garments [][]byte, in Instruction) ([]byte, error)
}

// ErrorKind classifies a provider failure for the retry policy.
type ErrorKind int

const (
	// KindUnauthenticated means the provider is misconfigured or rejected
	// the credentials. Terminal, never retried.
	KindUnauthenticated ErrorKind = iota
	// KindRateLimited means the provider throttled the call. Retried with
	// exponential backoff.
	KindRateLimited
	// KindServer means a transient 5xx-class failure. Retried after a
	// fixed short delay.
	KindServer
	// KindTimeout means the per-call deadline elapsed. Retried like a
	// transient failure.
	KindTimeout
	// KindBadResponse means the call succeeded but no image payload could
	// be extracted. Terminal, never retried.
	KindBadResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindBadResponse:
		return "bad_response"
	default:
		return "unknown"
	}
}

// Error is the uniform typed failure returned by every provider.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt against
// the same provider.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServer, KindTimeout:
		return true
	default:
		return false
	}
}
