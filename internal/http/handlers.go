package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bizledger/internal/core"
	"bizledger/internal/log"
	"bizledger/internal/ratio"
	"bizledger/internal/report"
	"bizledger/internal/services"
)

// fail writes err's response, logging it when it is the server's fault.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFrom(err)
	if resp.statusCode >= http.StatusInternalServerError {
		ctx := r.Context()
		log.NewStructuredLogger(log.FromContext(ctx)).
			LogError(ctx, "Request failed", err, log.ComponentHTTP, op, nil)
	}
	resp.Write(w)
}

func (s *Server) badBody(w http.ResponseWriter, err error) {
	BadRequestError(err.Error()).Write(w)
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	rng := core.Range(strings.TrimSpace(r.URL.Query().Get("range")))
	types, err := s.svc.Types(r.Context(), ownerFrom(r, s.defaultOwner), rng)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(types).Write(w)
}

func (s *Server) handleSaveType(w http.ResponseWriter, r *http.Request) {
	var t core.ExpenseType
	if err := decodeJSON(w, r, &t); err != nil {
		s.badBody(w, err)
		return
	}
	t.Name = sanitizeInput(t.Name)
	saved, err := s.svc.SaveType(r.Context(), t)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(saved).Write(w)
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	method := core.ExpenseMethod(strings.TrimSpace(r.URL.Query().Get("method")))
	labels, err := s.svc.Labels(r.Context(), r.PathValue("id"), method)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(labels).Write(w)
}

func (s *Server) handleSaveLabel(w http.ResponseWriter, r *http.Request) {
	var l core.ExpenseLabel
	if err := decodeJSON(w, r, &l); err != nil {
		s.badBody(w, err)
		return
	}
	l.Name = sanitizeInput(l.Name)
	saved, err := s.svc.SaveLabel(r.Context(), l)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(saved).Write(w)
}

func (s *Server) handleSaveVehicle(w http.ResponseWriter, r *http.Request) {
	var v core.Vehicle
	if err := decodeJSON(w, r, &v); err != nil {
		s.badBody(w, err)
		return
	}
	v.Make = sanitizeInput(v.Make)
	saved, err := s.svc.SaveVehicle(r.Context(), v)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(saved).Write(w)
}

func (s *Server) handleOdometer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	start, err := s.svc.StartingOdometer(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(map[string]any{
		"vehicle_id":        id,
		"starting_odometer": start,
	}).Write(w)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	l, err := s.svc.Ledger(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpVerify, err)
		return
	}
	NewResponse().JSON(l).Write(w)
}

func (s *Server) handleSaveBusiness(w http.ResponseWriter, r *http.Request) {
	var b core.Business
	if err := decodeJSON(w, r, &b); err != nil {
		s.badBody(w, err)
		return
	}
	b.BusinessName = sanitizeInput(b.BusinessName)
	b.CreatedAt = time.Time{}
	saved, err := s.svc.SaveBusiness(r.Context(), ownerFrom(r, s.defaultOwner), b)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(saved).Write(w)
}

func (s *Server) handleBusiness(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r, s.defaultOwner)
	b, err := s.svc.Business(r.Context(), owner)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	if b == nil {
		NotFoundError(fmt.Sprintf("no business for owner %s", owner.UserID)).Write(w)
		return
	}
	NewResponse().JSON(b).Write(w)
}

type ratioRequest struct {
	OfficeSquareFootage decimal.Decimal `json:"office_square_footage"`
	HomeSquareFootage   decimal.Decimal `json:"home_square_footage"`
	PurchasePrice       decimal.Decimal `json:"purchase_price"`
	CostOfPurchase      decimal.Decimal `json:"cost_of_purchase"`
	LandValue           decimal.Decimal `json:"land_value"`
	Improvements        decimal.Decimal `json:"improvements"`
}

type ratioResponse struct {
	BusinessUseRatio decimal.NullDecimal `json:"business_use_ratio"`
	TotalBasis       decimal.Decimal     `json:"total_basis"`
}

func (s *Server) handleRatio(w http.ResponseWriter, r *http.Request) {
	var in ratioRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.badBody(w, err)
		return
	}
	NewResponse().JSON(ratioResponse{
		BusinessUseRatio: ratio.BusinessUseRatio(in.OfficeSquareFootage, in.HomeSquareFootage),
		TotalBasis:       ratio.TotalBasis(in.PurchasePrice, in.CostOfPurchase, in.LandValue, in.Improvements),
	}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in services.Submission
	if err := decodeJSON(w, r, &in); err != nil {
		s.badBody(w, err)
		return
	}
	in.Note = sanitizeInput(in.Note)
	saved, err := s.svc.Submit(r.Context(), ownerFrom(r, s.defaultOwner), in)
	if err != nil {
		s.fail(w, r, log.OpCommit, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+saved.ID).
		JSON(saved).
		Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := ParseExpenseFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	items, err := s.svc.ListExpenses(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	NewResponse().JSON(items).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.PathValue("year"))
	if err != nil {
		s.fail(w, r, log.OpBuild, core.NewValidationError("year", err))
		return
	}
	g, err := s.svc.Grid(r.Context(), year)
	if err != nil {
		s.fail(w, r, log.OpBuild, err)
		return
	}
	NewResponse().JSON(g).Write(w)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.PathValue("year"))
	if err != nil {
		s.fail(w, r, log.OpExport, core.NewValidationError("year", err))
		return
	}
	g, err := s.svc.Grid(r.Context(), year)
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, g); err != nil {
		s.fail(w, r, log.OpExport, fmt.Errorf("write xlsx: %w", err))
		return
	}
	NewResponse().
		Header("Content-Disposition", fmt.Sprintf(`attachment; filename="grid-%d.xlsx"`, year)).
		Bytes(xlsxContentType, buf.Bytes()).
		Write(w)
}
