package nfepipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// Classify derives the accounting entry for an already-extracted payload.
// The payload is normalized and validated in place first; regime empty
// means "company profile, then wildcard row".
func (s *Service) Classify(ctx context.Context, payload *Payload, regime string) ClassifyResult {
	if payload == nil {
		return classifyFailure(common.Errorf(common.CodeValidation, "Payload é obrigatório."))
	}
	payload.Normalize()
	if err := payload.Validate(s.logger); err != nil {
		return classifyFailure(err)
	}
	if regime == "" {
		regime = s.defaultRegime(ctx, payload)
	}
	return ClassifyResult{OK: true, Classification: s.engine.Classify(payload, regime)}
}

// ResolveReview applies a human correction to a payload that was flagged
// for review. The first pass through Process yields needs-review plus a
// reason; this second pass with the filled correction record persists the
// mapping and returns the final classification with the flag cleared.
func (s *Service) ResolveReview(ctx context.Context, payload *Payload, c Correction) ClassifyResult {
	if payload == nil {
		return classifyFailure(common.Errorf(common.CodeReviewInput, "Payload é obrigatório."))
	}
	out, err := s.resolver.Resolve(payload, c)
	if err != nil {
		return classifyFailure(err)
	}
	return ClassifyResult{OK: true, Classification: out}
}

// ResolveReviewJob is ResolveReview addressed by job ID: the stored payload
// is reclassified and the job record is updated with the final result.
func (s *Service) ResolveReviewJob(ctx context.Context, jobID string, c Correction) ClassifyResult {
	if s.store == nil {
		return classifyFailure(common.Errorf(common.CodeConfig,
			"Operação requer um histórico configurado."))
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return classifyFailure(common.NewAppError(common.CodeReviewInput,
			"Identificador de job inválido: "+jobID, err))
	}
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return classifyFailure(err)
	}
	if job.Payload == nil {
		return classifyFailure(common.Errorf(common.CodeReviewInput,
			"Job não possui payload extraído para reclassificar."))
	}

	out, err := s.resolver.Resolve(job.Payload, c)
	if err != nil {
		return classifyFailure(err)
	}
	if err := s.store.SaveResult(ctx, id, job.Payload, out); err != nil {
		// Store-centric operation: losing the job update is a failure even
		// though the mapping row is already persisted.
		return classifyFailure(err)
	}
	s.logger.Info("pipeline.review.resolved", "job_id", jobID, "cfop", out.CFOP)
	return ClassifyResult{OK: true, Classification: out}
}

func classifyFailure(err error) ClassifyResult {
	msg, code := errorRecord(err)
	return ClassifyResult{Error: msg, ErrorCode: code}
}
