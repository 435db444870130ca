// Package httpapi is the HTTP boundary (spec.md §2, §6): translates
// wire requests into domain-service calls, maps every *errors.ServiceError
// to the uniform envelope and status code, and applies Accept-Language
// localization. Grounded on the teacher's infrastructure/httputil
// (WriteJSON/DecodeJSON/body-limit helpers) and gorilla/mux route
// registration style used throughout services/*/marble/handlers.go.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

const maxBodyBytes = 1 << 20 // 1MiB, matching the teacher's ClientDefaults.MaxBodyBytes

// writeJSON encodes v as the response body with the given status,
// mirroring httputil.WriteJSON.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads and decodes a JSON request body capped at
// maxBodyBytes, mirroring httputil.DecodeJSON's body-limit discipline.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, apperrors.Validation("body", "malformed JSON request body"))
		return false
	}
	return true
}

// errorEnvelope is spec.md §6's uniform error body.
type errorEnvelope struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// writeError maps any error to spec.md §7's status/code table and
// localizes its detail message per the request's negotiated language.
// Domain services never format this envelope themselves — only this
// function does, per spec.md §7's propagation policy.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lang := negotiateLanguage(r)
	w.Header().Set("Content-Language", lang)

	se, ok := apperrors.As(err)
	if !ok {
		se = apperrors.Internal("unexpected error", err)
	}
	detail := se.Message
	if se.Kind != apperrors.KindInternal {
		detail = localize(lang, se.Code, se.Message)
	} else {
		detail = localize(lang, "internal_error", "an internal error occurred")
	}
	writeJSON(w, se.HTTPStatus, errorEnvelope{Detail: detail, Code: se.Code})
}

// pageResult is spec.md §6's list-response envelope.
type pageResult struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

func newPage(items any, total, page, size int) pageResult {
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pageResult{Items: items, Total: total, Page: page, Size: size, Pages: pages}
}

// pagination parses and clamps the page/size query params per spec.md §6.
func pagination(r *http.Request) (page, size int) {
	page = 1
	size = 20
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			page = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 100 {
			size = n
		}
	}
	return page, size
}

// negotiateLanguage picks "uk" (platform default) or "en" from
// Accept-Language, per spec.md §6's supported-tag list.
func negotiateLanguage(r *http.Request) string {
	header := r.Header.Get("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch {
		case strings.HasPrefix(tag, "en"):
			return "en"
		case strings.HasPrefix(tag, "uk"):
			return "uk"
		}
	}
	return "uk"
}

// localize resolves a stable code to its localized detail string,
// falling back to the English default message when no translation
// exists — the wire "code" field is never localized, only "detail" is.
func localize(lang, code, fallback string) string {
	if lang == "en" {
		return fallback
	}
	if msg, ok := ukMessages[code]; ok {
		return msg
	}
	return fallback
}

// ukMessages carries the small set of Ukrainian translations this
// repository ships out of the box; anything absent falls back to the
// English message, never to a raw machine code.
var ukMessages = map[string]string{
	"validation_error":               "неправильні вхідні дані",
	"auth.invalid_token":             "недійсний токен автентифікації",
	"auth.expired_token":             "термін дії токена автентифікації закінчився",
	"auth.inactive_user":             "обліковий запис користувача неактивний",
	"authz.denied":                   "доступ заборонено",
	"not_found":                      "не знайдено",
	"business_rule.insufficient_funds": "недостатньо коштів для цієї операції",
	"business_rule.dependency_cycle": "ця залежність створила б цикл",
	"business_rule.invitation_expired": "термін дії цього запрошення закінчився",
	"business_rule.already_accepted": "це запрошення вже прийнято",
	"internal_error":                 "сталася внутрішня помилка",
}
