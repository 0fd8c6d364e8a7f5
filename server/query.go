package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"mediarag/core"
	"mediarag/storage"
)

// noAnswerText is returned verbatim when retrieval finds nothing close
// enough; the language model is not consulted in that case.
const noAnswerText = "No relevant information was found in the indexed media."

type queryRequest struct {
	Question    string           `json:"question"`
	TopK        int              `json:"top_k,omitempty"`
	MaxDistance float64          `json:"max_distance,omitempty"`
	Ranges      []core.TimeRange `json:"ranges,omitempty"`
}

type queryResponse struct {
	Answer  string        `json:"answer"`
	Sources []core.Source `json:"sources"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	for _, rng := range req.Ranges {
		if rng.MediaID == "" || rng.EndSeconds < rng.StartSeconds {
			writeError(w, http.StatusBadRequest, "each range needs a media_id and start <= end")
			return
		}
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.QueryTopK
	}
	if req.MaxDistance <= 0 {
		req.MaxDistance = s.cfg.QueryMaxDistance
	}

	vector, err := s.embedder.Embed(r.Context(), question)
	if err != nil {
		s.log.Error("embed question", "error", err)
		writeError(w, http.StatusBadGateway, "embed question")
		return
	}

	sources, err := s.index.Search(r.Context(), storage.SearchQuery{
		Vector:      vector,
		ModelName:   s.cfg.EmbeddingModel,
		Ranges:      req.Ranges,
		TopK:        req.TopK,
		MaxDistance: req.MaxDistance,
	})
	if err != nil {
		s.log.Error("vector search", "error", err)
		writeError(w, http.StatusInternalServerError, "vector search")
		return
	}
	if len(sources) == 0 {
		writeJSON(w, http.StatusOK, queryResponse{Answer: noAnswerText, Sources: []core.Source{}})
		return
	}

	answer, err := s.chat.Complete(r.Context(), buildPrompt(question, sources))
	if err != nil {
		s.log.Error("generate answer", "error", err)
		writeError(w, http.StatusBadGateway, "generate answer")
		return
	}

	s.log.Info("query answered", "sources", len(sources))
	writeJSON(w, http.StatusOK, queryResponse{Answer: answer, Sources: sources})
}

// buildPrompt assembles the grounding context and the instruction for the
// chat model. Sources arrive distance-ordered; the context reads in playback
// order instead so excerpts from one recording stay coherent.
func buildPrompt(question string, sources []core.Source) string {
	ordered := make([]core.Source, len(sources))
	copy(ordered, sources)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].MediaID != ordered[j].MediaID {
			return ordered[i].MediaID < ordered[j].MediaID
		}
		return ordered[i].StartSeconds < ordered[j].StartSeconds
	})

	var sb strings.Builder
	sb.WriteString("Answer the question using only the transcript excerpts below. ")
	sb.WriteString("If they do not contain the answer, say so.\n\nTranscript excerpts:\n")
	for _, src := range ordered {
		sb.WriteString(formatSpan(src.StartSeconds, src.EndSeconds))
		sb.WriteByte(' ')
		sb.WriteString(src.Text)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

// formatSpan renders a time window as "[mm:ss - mm:ss]".
func formatSpan(start, end float64) string {
	return fmt.Sprintf("[%s - %s]", formatTimestamp(start), formatTimestamp(end))
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
