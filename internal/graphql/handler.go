package graphql

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/feedgraph/apiserver/internal/services"
	"github.com/feedgraph/apiserver/internal/validation"
	graphqlgo "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
)

//go:embed schema.graphql
var schemaSDL string

const (
	maxBodyBytes    = 1 << 20
	internalMessage = "An error occurred"
)

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []formattedError `json:"errors,omitempty"`
}

// formattedError is the client-facing shape of a GraphQL error.
type formattedError struct {
	Message   string                 `json:"message"`
	Status    int                    `json:"status,omitempty"`
	Data      []validation.Violation `json:"data,omitempty"`
	Locations []gqlerrors.Location   `json:"locations,omitempty"`
	Path      []any                  `json:"path,omitempty"`
}

// Handler executes GraphQL requests against the feed schema.
type Handler struct {
	schema *graphqlgo.Schema
	logger *slog.Logger
}

func NewHandler(resolver *Resolver, logger *slog.Logger) (*Handler, error) {
	schema, err := graphqlgo.ParseSchema(schemaSDL, resolver)
	if err != nil {
		return nil, err
	}
	return &Handler{schema: schema, logger: logger}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	switch r.Method {
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
		if vars := r.URL.Query().Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				writeResponse(w, http.StatusBadRequest, requestError("Variables are invalid JSON."))
				return
			}
		}
	case http.MethodPost:
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeResponse(w, http.StatusBadRequest, requestError("POST body sent invalid JSON."))
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		writeResponse(w, http.StatusMethodNotAllowed, requestError("GraphQL only supports GET and POST requests."))
		return
	}

	if req.Query == "" {
		writeResponse(w, http.StatusBadRequest, requestError("Must provide query string."))
		return
	}

	result := h.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)
	resp := response{Data: result.Data, Errors: h.formatErrors(r, result.Errors)}
	writeResponse(w, statusFor(result), resp)
}

// formatErrors reshapes resolver errors into {message, status, data}.
// Errors raised before execution keep their message and location.
func (h *Handler) formatErrors(r *http.Request, errs []*gqlerrors.QueryError) []formattedError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]formattedError, 0, len(errs))
	for _, qe := range errs {
		if qe.ResolverError == nil {
			out = append(out, formattedError{Message: qe.Message, Locations: qe.Locations, Path: qe.Path})
			continue
		}
		if e, ok := services.AsError(qe.ResolverError); ok {
			out = append(out, formattedError{Message: e.Message, Status: e.Status, Data: e.Data})
			continue
		}
		h.logger.ErrorContext(r.Context(), "graphql resolver failed", "path", qe.Path, "error", qe.ResolverError)
		out = append(out, formattedError{Message: internalMessage, Status: http.StatusInternalServerError})
	}
	return out
}

func statusFor(result *graphqlgo.Response) int {
	if len(result.Errors) == 0 || hasData(result.Data) {
		return http.StatusOK
	}
	for _, qe := range result.Errors {
		if qe.ResolverError != nil {
			return http.StatusInternalServerError
		}
	}
	return http.StatusBadRequest
}

func hasData(data json.RawMessage) bool {
	return len(data) > 0 && string(data) != "null"
}

func requestError(message string) response {
	return response{Errors: []formattedError{{Message: message}}}
}

func writeResponse(w http.ResponseWriter, status int, value response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
