package httpserve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
	"github.com/sufield/fan/internal/core/services"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// authResponse is the JSON body of a completed authentication.
type authResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject"`
	AttemptID     string `json:"attempt_id"`
	Session       string `json:"session,omitempty"`
	SessionExpiry string `json:"session_expires_at,omitempty"`
}

func (s *Server) handleAgentDocument(w http.ResponseWriter, req *http.Request) {
	s.serveDocument(w, req, func(ctx context.Context, accept string, ims time.Time) (*services.PublishedDocument, error) {
		return s.publisher.AgentDocument(ctx, accept, ims)
	})
}

func (s *Server) handleSubjectDocument(w http.ResponseWriter, req *http.Request) {
	name, found := strings.CutSuffix(req.PathValue("file"), ".did")
	if !found || name == "" {
		s.writeError(w, ports.ErrNotFound)
		return
	}
	s.serveDocument(w, req, func(ctx context.Context, accept string, ims time.Time) (*services.PublishedDocument, error) {
		return s.publisher.SubjectDocument(ctx, name, accept, ims)
	})
}

func (s *Server) serveDocument(w http.ResponseWriter, req *http.Request, load func(context.Context, string, time.Time) (*services.PublishedDocument, error)) {
	accept := pickDocumentEncoding(req.Header.Get("Accept"))
	ims := parseHTTPDate(req.Header.Get("If-Modified-Since"))

	doc, err := load(req.Context(), accept, ims)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Last-Modified", doc.LastModified.UTC().Format(http.TimeFormat))
	if doc.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	_, _ = w.Write(doc.Body)
}

func (s *Server) handleBeginAuth(w http.ResponseWriter, req *http.Request) {
	address := req.URL.Query().Get("address")
	if address == "" {
		s.writeStatus(w, http.StatusBadRequest, "the address query parameter is required")
		return
	}

	challenge, err := s.website.BeginAuthentication(req.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", domain.MIMEJose)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, challenge.Envelope)
}

func (s *Server) handleCompleteAuth(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxAuthBodyBytes))
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	envelope := strings.TrimSpace(string(body))
	if envelope == "" {
		s.writeStatus(w, http.StatusBadRequest, "the request body must carry a signed challenge response")
		return
	}

	result, err := s.website.CompleteAuthentication(req.Context(), envelope)
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := authResponse{
		Authenticated: true,
		Subject:       result.Subject.String(),
		AttemptID:     result.AttemptID,
	}
	if result.Session != nil {
		response.Session = result.Session.Token
		response.SessionExpiry = result.Session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, response)
}

// pickDocumentEncoding turns an Accept header into the document encoding to
// embed, or empty to keep the stored one. Unknown specific types pass
// through so the publisher can reject them.
func pickDocumentEncoding(accept string) string {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return ""
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		switch mediaType {
		case "*/*", "application/*", domain.MIMEJose:
			return ""
		}
		if _, err := domain.CodecFor(mediaType); err == nil {
			return mediaType
		}
	}
	return accept
}

func parseHTTPDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeStatus(w, statusFor(err), err.Error())
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

// statusFor maps the engine's error taxonomy onto HTTP statuses: caller
// mistakes are 4xx, remote trust and transport failures are 502, and
// challenge response failures are 401 so callers cannot probe which step
// rejected them beyond the protocol's own wording.
func statusFor(err error) int {
	var validationErr *coreerrors.ValidationError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedContentType):
		return http.StatusNotAcceptable
	case errors.As(err, &validationErr),
		errors.Is(err, coreerrors.ErrMalformedAddress),
		errors.Is(err, coreerrors.ErrMalformedPort),
		errors.Is(err, coreerrors.ErrUnsupportedDID):
		return http.StatusBadRequest
	case errors.Is(err, coreerrors.ErrSovereignRejected):
		return http.StatusForbidden
	// Trust failures wrap the signature failure that caused them, so they
	// must be recognized before the bare signature case.
	case errors.Is(err, coreerrors.ErrAgentDocumentUnreachable),
		errors.Is(err, coreerrors.ErrFetchFailed),
		errors.Is(err, coreerrors.ErrAgentUntrusted),
		errors.Is(err, coreerrors.ErrSubjectUntrusted),
		errors.Is(err, coreerrors.ErrNoVerificationMethods):
		return http.StatusBadGateway
	case errors.Is(err, coreerrors.ErrUnknownAttempt),
		errors.Is(err, coreerrors.ErrAttemptExpired),
		errors.Is(err, coreerrors.ErrNonceMismatch),
		errors.Is(err, coreerrors.ErrSignatureInvalid),
		errors.Is(err, coreerrors.ErrDecryptionFailed):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
