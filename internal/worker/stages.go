package worker

import (
	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
)

// DefaultMaxDenialRetries bounds re-fetches of a URL that keeps serving a
// challenge page.
const DefaultMaxDenialRetries = 20

// DenialStage turns an anti-bot challenge page into a re-fetch of the same URL.
type DenialStage struct {
	classifier *extract.Classifier
	maxRetries int
}

// NewDenialStage creates the stage. maxRetries of zero means unbounded.
func NewDenialStage(classifier *extract.Classifier, maxRetries int) *DenialStage {
	return &DenialStage{classifier: classifier, maxRetries: maxRetries}
}

// DenialVerdict is the result of DenialStage.Check.
type DenialVerdict struct {
	Denied    bool
	Refetch   *domain.Request
	Exhausted bool
}

// Check inspects page. On a denial it returns a copy of req at the same
// priority with DontFilter set, unless the denial budget is spent.
func (s *DenialStage) Check(req *domain.Request, page extract.Page) DenialVerdict {
	if !s.classifier.IsDenial(page.Title) {
		return DenialVerdict{}
	}
	if s.maxRetries > 0 && req.DenialCount >= s.maxRetries {
		return DenialVerdict{Denied: true, Exhausted: true}
	}

	next := req.Clone()
	next.DenialCount = req.DenialCount + 1
	next.DontFilter = true
	next.Meta[domain.MetaSource] = domain.SourceDenial
	return DenialVerdict{Denied: true, Refetch: next}
}
