package circulation

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/feed"
	"schoollib/internal/loans"
	"schoollib/pkg/models"
)

type Handler struct {
	Service *Service
	Hub     *feed.Hub
}

func NewHandler(service *Service, hub *feed.Hub) *Handler {
	return &Handler{Service: service, Hub: hub}
}

// RegisterRoutes wires borrow and the loan listings for any
// authenticated caller.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/loans", h.borrow)
	rg.GET("/loans", h.list)
	rg.GET("/loans/:id", h.getOne)
}

// RegisterOperatorRoutes wires return processing; the caller is expected
// to gate the group to librarians.
func (h *Handler) RegisterOperatorRoutes(rg *gin.RouterGroup) {
	rg.POST("/loans/:id/return", h.processReturn)
}

type borrowReq struct {
	BookID        string `json:"book_id"`
	BorrowDate    string `json:"borrow_date"` // YYYY-MM-DD, defaults to today
	BorrowerName  string `json:"borrower_name"`
	BorrowerRole  string `json:"borrower_role"`
	BorrowerGroup string `json:"borrower_group"`
}

func (h *Handler) borrow(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req borrowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req.BookID = strings.TrimSpace(req.BookID)
	if req.BookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id required"})
		return
	}

	borrow := BorrowRequest{BookID: req.BookID}

	// Students and teachers borrow as themselves; a librarian checks a
	// book out on behalf of a named borrower.
	if claims.Role == models.RoleLibrarian {
		borrow.BorrowerName = strings.TrimSpace(req.BorrowerName)
		borrow.BorrowerRole = strings.TrimSpace(req.BorrowerRole)
		borrow.BorrowerGroup = strings.TrimSpace(req.BorrowerGroup)
		if borrow.BorrowerName == "" || borrow.BorrowerRole == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "borrower_name and borrower_role required"})
			return
		}
	} else {
		borrow.BorrowerName = claims.Username
		borrow.BorrowerRole = claims.Role
		borrow.BorrowerGroup = claims.Group
	}

	if req.BorrowDate != "" {
		d, err := time.Parse("2006-01-02", req.BorrowDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "borrow_date must be YYYY-MM-DD"})
			return
		}
		borrow.BorrowDate = d
	}

	loan, err := h.Service.Borrow(c.Request.Context(), borrow)
	if err != nil {
		writeError(c, err)
		return
	}

	h.broadcast(c, feed.EventLoanCreated, loan)
	c.JSON(http.StatusCreated, loan)
}

type returnReq struct {
	FinePaid bool `json:"fine_paid"`
}

func (h *Handler) processReturn(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("id"))
	if loanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan id required"})
		return
	}

	var req returnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	loan, err := h.Service.Return(c.Request.Context(), loanID, req.FinePaid, time.Time{})
	if err != nil {
		writeError(c, err)
		return
	}

	h.broadcast(c, feed.EventLoanReturned, loan)
	c.JSON(http.StatusOK, loan)
}

func (h *Handler) list(c *gin.Context) {
	status := strings.TrimSpace(strings.ToLower(c.Query("status")))
	if status == "" {
		status = models.LoanOutstanding
	}
	bookID := strings.TrimSpace(c.Query("book_id"))

	var (
		items []models.Loan
		err   error
	)
	switch status {
	case models.LoanOutstanding:
		items, err = h.Service.Ledger.ListOutstanding(c.Request.Context(), bookID)
	case models.LoanReturned:
		items, err = h.Service.Ledger.ListReturned(c.Request.Context(), bookID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be outstanding or returned"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"total":  len(items),
		"items":  items,
	})
}

func (h *Handler) getOne(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("id"))
	if loanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan id required"})
		return
	}

	loan, err := h.Service.Ledger.Get(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *Handler) broadcast(c *gin.Context, eventType string, loan *models.Loan) {
	if h.Hub == nil {
		return
	}

	ev := feed.CirculationEvent{
		Type:         eventType,
		LoanID:       loan.ID,
		BookID:       loan.BookID,
		BorrowerName: loan.BorrowerName,
		Status:       loan.Status,
		FineAmount:   loan.FineAmount,
		At:           time.Now().UTC(),
	}
	if book, err := h.Service.Catalog.Get(c.Request.Context(), loan.BookID); err == nil {
		ev.AvailableCopies = book.AvailableCopies
	}
	go h.Hub.BroadcastJSON(ev)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, loans.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, loans.ErrNotFound),
		errors.Is(err, loans.ErrBookNotFound),
		errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrNoCopiesAvailable),
		errors.Is(err, loans.ErrAlreadyReturned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "circulation operation failed"})
	}
}
