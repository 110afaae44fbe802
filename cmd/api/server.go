package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/kasbon/pkg/auth"
	"github.com/mcclellann/kasbon/pkg/finance"
	"github.com/mcclellann/kasbon/pkg/ledger"
	"github.com/mcclellann/kasbon/pkg/metrics"
	"github.com/mcclellann/kasbon/pkg/migrate"
	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/mcclellann/kasbon/pkg/period"
	"github.com/mcclellann/kasbon/pkg/report"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds request bodies; a full state snapshot can be large.
const maxBodyBytes = 50 << 20

// Server exposes the ledger over HTTP. All mutations go through the
// dispatcher.
type Server struct {
	dispatcher *ledger.Dispatcher
	auth       *auth.Service
	importer   *report.Importer
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewServer(d *ledger.Dispatcher, a *auth.Service, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: d,
		auth:       a,
		importer:   report.NewImporter(),
		metrics:    m,
		logger:     logger,
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/login", s.loginHandler).Methods("POST")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Middleware)
	api.HandleFunc("/credentials", s.changeCredentialsHandler).Methods("PUT")
	api.HandleFunc("/state", s.getStateHandler).Methods("GET")
	api.HandleFunc("/state", s.loadStateHandler).Methods("POST")
	api.HandleFunc("/actions", s.actionHandler).Methods("POST")
	api.HandleFunc("/borrowers", s.listBorrowersHandler).Methods("GET")
	api.HandleFunc("/borrowers", s.createBorrowerHandler).Methods("POST")
	api.HandleFunc("/borrowers/{id}/limit", s.limitHandler).Methods("GET")
	api.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	api.HandleFunc("/transactions/{id}/payments", s.recordPaymentHandler).Methods("POST")
	api.HandleFunc("/transactions/{id}/payments/{installmentId}", s.deletePaymentHandler).Methods("DELETE")
	api.HandleFunc("/transactions/{id}", s.deleteTransactionHandler).Methods("DELETE")
	api.HandleFunc("/summary", s.summaryHandler).Methods("GET")
	api.HandleFunc("/recap", s.recapHandler).Methods("GET")
	api.HandleFunc("/export.csv", s.exportHandler).Methods("GET")
	api.HandleFunc("/import/borrowers", s.importBorrowersHandler).Methods("POST")
	api.HandleFunc("/import/history", s.importHistoryHandler).Methods("POST")
	api.HandleFunc("/import/arrears", s.importArrearsHandler).Methods("POST")
	api.HandleFunc("/config/months", s.addMonthHandler).Methods("PUT")
	api.HandleFunc("/config/months/{label}", s.removeMonthHandler).Methods("DELETE")
	api.HandleFunc("/config/years/{year}", s.addYearHandler).Methods("POST")
	return router
}

// dispatch applies a and counts the outcome.
func (s *Server) dispatch(a ledger.Action) (models.State, error) {
	st, err := s.dispatcher.Dispatch(a)
	s.metrics.ObserveAction(a.Type(), err)
	if err != nil {
		s.logger.Info("Action rejected", slog.String("type", a.Type()), slog.Any("error", err))
	}
	return st, err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger and domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrInvalidAction), errors.Is(err, ledger.ErrUnknownAction),
		errors.Is(err, period.ErrEmptyLabel), errors.Is(err, period.ErrUnknownYear),
		errors.Is(err, errBadUpload):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, period.ErrDuplicate), errors.Is(err, period.ErrActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// requestUser names the authenticated caller for logs.
func requestUser(r *http.Request) string {
	if claims, ok := auth.FromContext(r.Context()); ok {
		return claims.Username
	}
	return ""
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) changeCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewUsername string `json:"newUsername"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.auth.ChangeCredentials(r.Context(), req.OldPassword, req.NewUsername, req.NewPassword)
	switch {
	case err == nil:
		s.logger.Info("Admin credentials changed", slog.String("by", requestUser(r)), slog.String("username", req.NewUsername))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrWrongPassword):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, auth.ErrEmptyUsername), errors.Is(err, auth.ErrPasswordTooShort):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) getStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.State())
}

// loadStateHandler replaces the whole state with a snapshot of any
// supported version.
func (s *Server) loadStateHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, err := migrate.Migrate(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.dispatch(ledger.LoadState{State: st}); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("State replaced", slog.String("by", requestUser(r)),
		slog.Int("borrowers", len(st.Borrowers)), slog.Int("transactions", len(st.Transactions)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "state saved"})
}

func (s *Server) actionHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := ledger.DecodeAction(data)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.dispatch(a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listBorrowersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.State().Borrowers)
}

func (s *Server) createBorrowerHandler(w http.ResponseWriter, r *http.Request) {
	var b models.Borrower
	if !decodeBody(w, r, &b) {
		return
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	a := ledger.AddBorrower{Borrower: b}
	if err := ledger.ValidateAction(a); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.dispatch(a); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) limitHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	amount := decimal.Zero
	if raw := q.Get("amount"); raw != "" {
		var err error
		if amount, err = decimal.NewFromString(raw); err != nil {
			http.Error(w, "Invalid amount", http.StatusBadRequest)
			return
		}
	}
	st := s.dispatcher.State()
	cat := st.Config.ActiveCycle
	if raw := q.Get("category"); raw != "" {
		cat = models.Category(raw)
		if !cat.Valid() {
			http.Error(w, "Invalid category", http.StatusBadRequest)
			return
		}
	}

	check, ok := finance.CheckLimit(st, id, amount, cat)
	if !ok {
		http.Error(w, "Borrower not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BorrowerID string           `json:"borrowerId"`
		Amount     decimal.Decimal  `json:"amount"`
		Rate       *decimal.Decimal `json:"rate"`
		Category   models.Category  `json:"category"`
		IsPriority *bool            `json:"isPriority"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var a ledger.AddLoan
	st, _, err := s.update(func(st models.State) ([]ledger.Action, error) {
		cfg := st.Config
		a = ledger.AddLoan{
			BorrowerID: req.BorrowerID,
			Amount:     req.Amount,
			Category:   req.Category,
			IsPriority: req.IsPriority,
		}
		if a.Category == "" {
			a.Category = cfg.ActiveCycle
		}
		if req.Rate != nil {
			a.Rate = *req.Rate
		} else {
			a.Rate = cfg.InterestRate(a.Category)
		}
		return []ledger.Action{a}, ledger.ValidateAction(a)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	i := slices.IndexFunc(st.Transactions, func(t models.LoanTransaction) bool {
		return t.BorrowerID == a.BorrowerID && t.Category == a.Category && t.Active()
	})
	if i < 0 {
		http.Error(w, "loan not recorded", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, st.Transactions[i])
}

// transactionResponse writes the transaction with id from st.
func transactionResponse(w http.ResponseWriter, st models.State, id string, status int) {
	i := st.FindTransaction(id)
	if i < 0 {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, status, st.Transactions[i])
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var a ledger.MakePayment
	if !decodeBody(w, r, &a) {
		return
	}
	a.TransactionID = id
	if err := ledger.ValidateAction(a); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.dispatch(a)
	if err != nil {
		writeError(w, err)
		return
	}
	transactionResponse(w, st, id, http.StatusCreated)
}

func (s *Server) deletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	st, err := s.dispatch(ledger.DeletePayment{TransactionID: vars["id"], InstallmentID: vars["installmentId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	transactionResponse(w, st, vars["id"], http.StatusOK)
}

func (s *Server) deleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.dispatch(ledger.DeleteTransaction{ID: mux.Vars(r)["id"]}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterFromQuery reads period, category, priority and arrear parameters.
func filterFromQuery(r *http.Request) (finance.Filter, error) {
	q := r.URL.Query()
	f := finance.Filter{
		Period:     q.Get("period"),
		Category:   models.Category(q.Get("category")),
		BorrowerID: q.Get("borrower"),
		Search:     q.Get("q"),
	}
	if f.Category != "" && !f.Category.Valid() {
		return f, fmt.Errorf("invalid category %q", f.Category)
	}
	if raw := q.Get("priority"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid priority %q", raw)
		}
		f.PriorityOnly = v
	}
	if raw := q.Get("arrear"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid arrear %q", raw)
		}
		f.Arrear = &v
	}
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid active %q", raw)
		}
		f.ActiveOnly = v
	}
	return f, nil
}

type summaryResponse struct {
	Count int `json:"count"`
	finance.Summary
	Display map[string]string `json:"display"`
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txs := f.Apply(s.dispatcher.State().Transactions)
	sum := finance.Summarize(txs)
	writeJSON(w, http.StatusOK, summaryResponse{
		Count:   len(txs),
		Summary: sum,
		Display: map[string]string{
			"totalModal":       finance.FormatIDR(sum.TotalPrincipal),
			"totalPiutang":     finance.FormatIDR(sum.TotalReceivable),
			"profitProjection": finance.FormatIDR(sum.ProjectedProfit),
			"totalPaid":        finance.FormatIDR(sum.TotalPaid),
			"outstanding":      finance.FormatIDR(sum.Outstanding),
		},
	})
}

func (s *Server) recapHandler(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, finance.SummarizeByPeriod(f.Apply(s.dispatcher.State().Transactions)))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st := s.dispatcher.State()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.ExportFilename(st.Config)))
	if err := report.WriteCSV(w, f.Apply(st.Transactions)); err != nil {
		s.logger.Error("Failed to write export", slog.Any("error", err))
	}
}

// errBadUpload marks import bodies that cannot be parsed.
var errBadUpload = errors.New("invalid upload")

// update applies the actions computed from the current state as one
// transition and counts each of them.
func (s *Server) update(compute func(models.State) ([]ledger.Action, error)) (models.State, []ledger.Action, error) {
	st, actions, err := s.dispatcher.Update(compute)
	var be *ledger.BatchError
	switch {
	case err == nil:
		for _, a := range actions {
			s.metrics.ObserveAction(a.Type(), nil)
		}
	case errors.As(err, &be):
		s.metrics.ObserveAction(be.Action.Type(), be.Err)
		s.logger.Info("Batch rejected", slog.String("type", be.Action.Type()), slog.Int("index", be.Index), slog.Any("error", be.Err))
	}
	return st, actions, err
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func countArrears(actions []ledger.Action) int {
	n := 0
	for _, a := range actions {
		if _, ok := a.(ledger.AddArrearManual); ok {
			n++
		}
	}
	return n
}

func (s *Server) importBorrowersHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.importer.ParseBorrowers(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actions := make([]ledger.Action, 0, len(rows))
	for _, a := range rows {
		actions = append(actions, a)
	}
	_, _, err = s.update(func(models.State) ([]ledger.Action, error) {
		return actions, ledger.ValidateActions(actions)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(actions)})
}

// importHistoryHandler records past loans for one category and period.
func (s *Server) importHistoryHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readUpload(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	_, actions, err := s.update(func(st models.State) ([]ledger.Action, error) {
		opts := report.HistoryOptions{
			Category: models.Category(q.Get("category")),
			Period:   q.Get("period"),
		}
		if opts.Category == "" {
			opts.Category = st.Config.ActiveCycle
		}
		if opts.Period == "" {
			opts.Period = st.Config.ActivePeriod(opts.Category)
		}
		actions, err := s.importer.ParseHistory(bytes.NewReader(body), st, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadUpload, err)
		}
		return actions, ledger.ValidateActions(actions)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": countArrears(actions)})
}

// importArrearsHandler records outstanding debts, each row carrying its own
// category and month.
func (s *Server) importArrearsHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readUpload(w, r)
	if !ok {
		return
	}
	_, actions, err := s.update(func(st models.State) ([]ledger.Action, error) {
		actions, err := s.importer.ParseArrears(bytes.NewReader(body), st)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadUpload, err)
		}
		return actions, ledger.ValidateActions(actions)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": countArrears(actions)})
}

// updateMonths swaps availableMonths for the result of change, computed
// from the config current at the time of the swap.
func (s *Server) updateMonths(w http.ResponseWriter, change func(models.AppConfig) ([]string, error)) {
	st, _, err := s.update(func(st models.State) ([]ledger.Action, error) {
		months, err := change(st.Config)
		if err != nil {
			return nil, err
		}
		if months == nil {
			months = []string{}
		}
		return []ledger.Action{ledger.UpdateConfig{Patch: ledger.ConfigPatch{AvailableMonths: months}}}, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Config.AvailableMonths)
}

func (s *Server) addMonthHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.updateMonths(w, func(c models.AppConfig) ([]string, error) {
		return period.Add(c.AvailableMonths, req.Label)
	})
}

func (s *Server) removeMonthHandler(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	s.updateMonths(w, func(c models.AppConfig) ([]string, error) {
		return period.Remove(c.AvailableMonths, label, c.ActiveMonthGaji, c.ActiveMonthRemon)
	})
}

func (s *Server) addYearHandler(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	s.updateMonths(w, func(c models.AppConfig) ([]string, error) {
		return period.AddYear(c.AvailableMonths, year)
	})
}
