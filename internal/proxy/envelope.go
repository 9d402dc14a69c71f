package proxy

import (
	"encoding/json"
	"net/http"
)

const cmdRequestGet = "request.get"

// envelopeRequest is the FlareSolverr v1 command body.
type envelopeRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int64  `json:"maxTimeout,omitempty"`
}

// envelopeResponse is the FlareSolverr v1 reply. The proxy answers HTTP 200
// even when the target did not, so the real status lives in Solution.
type envelopeResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Solution solution `json:"solution"`
}

type solution struct {
	URL      string            `json:"url"`
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	Response string            `json:"response"`
}

func decodeEnvelope(body []byte) (envelopeResponse, error) {
	var env envelopeResponse
	err := json.Unmarshal(body, &env)
	return env, err
}

func (s solution) header() http.Header {
	h := make(http.Header, len(s.Headers))
	for k, v := range s.Headers {
		h.Set(k, v)
	}
	return h
}
