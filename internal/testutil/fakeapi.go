// Package testutil provides an in-process stand-in for the remote finance API.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/workflow"
)

// DefaultOTP is the code the fake API sends for every OTP request
const DefaultOTP = "123456"

type fakeUser struct {
	user     domain.SessionUser
	password string
	token    string
}

type failure struct {
	status  int
	message string
}

// FakeAPI mimics the remote finance API closely enough for service and handler tests.
// It enforces the transition table and permissions server-side.
type FakeAPI struct {
	mu            sync.Mutex
	invoices      map[domain.ID]*domain.Invoice
	audit         map[domain.ID][]domain.AuditTrailEntry
	users         []*fakeUser
	notifications []domain.Notification
	codes         map[string]string
	pendingEmail  map[string]string
	requests      []string
	failures      []failure
	healthy       bool
	delay         time.Duration
	server        *httptest.Server
}

// NewFakeAPI starts a fake API server that is closed when the test ends
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		invoices:     make(map[domain.ID]*domain.Invoice),
		audit:        make(map[domain.ID][]domain.AuditTrailEntry),
		codes:        make(map[string]string),
		pendingEmail: make(map[string]string),
		healthy:      true,
	}
	f.server = httptest.NewServer(f.routes())
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL of the fake API
func (f *FakeAPI) URL() string {
	return f.server.URL
}

// AddUser registers a user that can log in with email and password.
// The returned token authenticates the user directly.
func (f *FakeAPI) AddUser(user domain.SessionUser, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := fmt.Sprintf("token-%s-%d", user.ID, len(f.users)+1)
	f.users = append(f.users, &fakeUser{user: user, password: password, token: token})
	return token
}

// SetPermissions replaces the permissions of a user, as an administrator would
func (f *FakeAPI) SetPermissions(userID domain.ID, perms domain.PermissionSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.user.ID == userID {
			u.user.Permissions = perms
		}
	}
}

// Password returns the current password of the user with email
func (f *FakeAPI) Password(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.user.Email == email {
			return u.password
		}
	}
	return ""
}

// Email returns the current email of a user
func (f *FakeAPI) Email(userID domain.ID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.user.ID == userID {
			return u.user.Email
		}
	}
	return ""
}

// AddInvoice stores an invoice
func (f *FakeAPI) AddInvoice(inv domain.Invoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := inv
	f.invoices[inv.ID] = &stored
}

// Invoice returns the stored copy of an invoice
func (f *FakeAPI) Invoice(id domain.ID) domain.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[id]; ok {
		return *inv
	}
	return domain.Invoice{}
}

// AddNotification appends to the notification feed
func (f *FakeAPI) AddNotification(n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

// FailNext makes the next request answer with status and message
func (f *FakeAPI) FailNext(status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{status: status, message: message})
}

// SetHealthy toggles the health endpoint
func (f *FakeAPI) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

// SetDelay slows down every response
func (f *FakeAPI) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Requests returns every request seen as "METHOD /path"
func (f *FakeAPI) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// CountRequests counts requests whose "METHOD /path" starts with prefix
func (f *FakeAPI) CountRequests(prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// CountMutations counts requests that are not GETs
func (f *FakeAPI) CountMutations() int {
	n := 0
	for _, r := range f.Requests() {
		if !strings.HasPrefix(r, http.MethodGet+" ") {
			n++
		}
	}
	return n
}

func (f *FakeAPI) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)

	r.Get("/health", f.health)

	r.Post("/auth/login", f.login)
	r.Post("/auth/forgot-password", f.forgotPassword)
	r.Post("/auth/verify-otp", f.verifyOTP)
	r.Post("/auth/reset-password", f.resetPassword)

	r.Group(func(r chi.Router) {
		r.Use(f.authenticate)

		r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/auth/me", f.me)
		r.Post("/profile/email/request", f.requestEmailChange)
		r.Post("/profile/email/confirm", f.confirmEmailChange)

		r.Get("/invoices", f.listInvoices)
		r.Get("/invoices/{id}", f.getInvoice)
		r.Get("/invoices/{id}/audit-trail", f.auditTrail)
		r.Post("/invoices/{id}/submit-to-finance", f.transition(workflow.ActionSubmit))
		r.Post("/invoices/{id}/approve", f.transition(workflow.ActionApprove))
		r.Post("/invoices/{id}/reject", f.transition(workflow.ActionReject))
		r.Post("/invoices/{id}/mark-paid", f.transition(workflow.ActionMarkPaid))
		r.Put("/invoices/{id}", f.transition(workflow.ActionEdit))

		r.Get("/notifications", f.listNotifications)
		r.Get("/notifications/unread-count", f.unreadCount)
	})

	return r
}

type ctxUserKey struct{}

func contextWithUser(r *http.Request, u *fakeUser) context.Context {
	return context.WithValue(r.Context(), ctxUserKey{}, u)
}

func userFrom(r *http.Request) *fakeUser {
	u, _ := r.Context().Value(ctxUserKey{}).(*fakeUser)
	return u
}

func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		delay := f.delay
		var fail *failure
		if len(f.failures) > 0 {
			fail = &f.failures[0]
			f.failures = f.failures[1:]
		}
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if fail != nil {
			writeJSON(w, fail.status, map[string]string{"message": fail.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		var found *fakeUser
		for _, u := range f.users {
			if token != "" && u.token == token {
				found = u
			}
		}
		f.mu.Unlock()
		if found == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r, found)))
	})
}

func (f *FakeAPI) health(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	healthy := f.healthy
	f.mu.Unlock()
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Service unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.user.Email, body.Email) && u.password == body.Password {
			writeJSON(w, http.StatusOK, map[string]interface{}{"token": u.token, "user": u.user})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "These credentials do not match our records."})
}

func (f *FakeAPI) me(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	f.mu.Lock()
	user := u.user
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (f *FakeAPI) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.user.Email, body.Email) {
			f.codes["reset:"+strings.ToLower(body.Email)] = DefaultOTP
			writeJSON(w, http.StatusOK, map[string]string{"message": "We have emailed your reset code."})
			return
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"message": "We can't find a user with that email address.",
		"errors":  map[string][]string{"email": {"We can't find a user with that email address."}},
	})
}

func (f *FakeAPI) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes["reset:"+strings.ToLower(body.Email)] != body.OTP || body.OTP == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "The code is invalid or has expired."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Code verified."})
}

func (f *FakeAPI) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email                string `json:"email"`
		OTP                  string `json:"otp"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	key := "reset:" + strings.ToLower(body.Email)
	if f.codes[key] != body.OTP || body.OTP == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "The code is invalid or has expired."})
		return
	}
	if len(body.Password) < 8 || body.Password != body.PasswordConfirmation {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "The password field confirmation does not match."})
		return
	}
	for _, u := range f.users {
		if strings.EqualFold(u.user.Email, body.Email) {
			u.password = body.Password
		}
	}
	delete(f.codes, key)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Your password has been reset."})
}

func (f *FakeAPI) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewEmail        string `json:"new_email"`
		CurrentPassword string `json:"current_password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	u := userFrom(r)

	f.mu.Lock()
	defer f.mu.Unlock()
	if u.password != body.CurrentPassword {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "The provided password is incorrect."})
		return
	}
	f.codes["email:"+u.user.ID.String()] = DefaultOTP
	f.pendingEmail[u.user.ID.String()] = body.NewEmail
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent."})
}

func (f *FakeAPI) confirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewEmail string `json:"new_email"`
		OTP      string `json:"otp"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	u := userFrom(r)

	f.mu.Lock()
	defer f.mu.Unlock()
	id := u.user.ID.String()
	if f.codes["email:"+id] != body.OTP || body.OTP == "" || f.pendingEmail[id] != body.NewEmail {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "The code is invalid or has expired."})
		return
	}
	u.user.Email = body.NewEmail
	delete(f.codes, "email:"+id)
	delete(f.pendingEmail, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email updated."})
}

func (f *FakeAPI) listInvoices(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 15
	}
	status := r.URL.Query().Get("status")
	search := strings.ToLower(r.URL.Query().Get("search"))

	f.mu.Lock()
	all := make([]domain.Invoice, 0, len(f.invoices))
	for _, inv := range f.invoices {
		if status != "" && inv.Status.String() != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(inv.InvoiceNumber), search) {
			continue
		}
		all = append(all, *inv)
	}
	f.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].InvoiceNumber < all[j].InvoiceNumber })

	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": all[start:end],
		"meta": map[string]int{"total": len(all), "current_page": page, "per_page": perPage},
	})
}

func (f *FakeAPI) getInvoice(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	f.mu.Lock()
	inv, ok := f.invoices[id]
	var out domain.Invoice
	if ok {
		out = *inv
	}
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Invoice not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

func (f *FakeAPI) auditTrail(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	f.mu.Lock()
	_, ok := f.invoices[id]
	entries := append([]domain.AuditTrailEntry{}, f.audit[id]...)
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Invoice not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
}

type transitionBody struct {
	RejectionReason  string          `json:"rejection_reason"`
	PaymentReference string          `json:"payment_reference"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentNotes     string          `json:"payment_notes"`
	InvoiceAmount    json.RawMessage `json:"invoice_amount"`
	InvoiceDate      string          `json:"invoice_date"`
}

func (f *FakeAPI) transition(action workflow.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := domain.ID(chi.URLParam(r, "id"))
		u := userFrom(r)

		var body transitionBody
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()

		inv, ok := f.invoices[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Invoice not found."})
			return
		}

		tr, err := workflow.CheckAction(inv.Status, u.user.Permissions, action)
		if err != nil {
			if errors.Is(err, workflow.ErrPermissionDenied) {
				writeJSON(w, http.StatusForbidden, map[string]string{"message": "You do not have permission to perform this action."})
				return
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"message": fmt.Sprintf("Invoice cannot be updated while in %s status.", inv.Status),
			})
			return
		}

		now := time.Now().UTC()
		actor := &domain.UserRef{ID: u.user.ID, Name: u.user.Name, Email: u.user.Email}
		old := inv.Status

		switch action {
		case workflow.ActionSubmit:
			inv.SubmittedAt, inv.Submitter = &now, actor
		case workflow.ActionApprove:
			inv.ApprovedAt, inv.Approver = &now, actor
		case workflow.ActionReject:
			if strings.TrimSpace(body.RejectionReason) == "" {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
					"message": "The rejection reason field is required.",
					"errors":  map[string][]string{"rejection_reason": {"The rejection reason field is required."}},
				})
				return
			}
			inv.RejectedAt, inv.Rejecter, inv.RejectionReason = &now, actor, body.RejectionReason
		case workflow.ActionMarkPaid:
			if body.PaymentReference == "" || body.PaymentMethod == "" {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Payment reference and method are required."})
				return
			}
			inv.PaidAt, inv.RecordedBy = &now, actor
			inv.PaymentReference, inv.PaymentMethod, inv.PaymentNotes = body.PaymentReference, body.PaymentMethod, body.PaymentNotes
		case workflow.ActionEdit:
			var edit domain.InvoiceEdit
			raw, _ := json.Marshal(body)
			if err := json.Unmarshal(raw, &edit); err != nil || edit.Date.IsZero() {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "The invoice date field is required."})
				return
			}
			inv.InvoiceAmount, inv.InvoiceDate = edit.Amount, edit.Date
		}
		inv.Status = tr.To
		inv.UpdatedAt = &now

		if tr.To != old {
			oldStatus := old
			f.audit[id] = append(f.audit[id], domain.AuditTrailEntry{
				ID:        domain.ID(strconv.Itoa(len(f.audit[id]) + 1)),
				OldStatus: &oldStatus,
				NewStatus: tr.To,
				User:      actor,
				Reason:    inv.RejectionReason,
				CreatedAt: now,
			})
		}

		// the real API wraps some responses and not others
		if action == workflow.ActionEdit {
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": *inv})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Invoice updated.", "invoice": *inv})
	}
}

func (f *FakeAPI) listNotifications(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	items := append([]domain.Notification{}, f.notifications...)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (f *FakeAPI) unreadCount(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	n := 0
	for _, item := range f.notifications {
		if item.ReadAt == nil {
			n++
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
