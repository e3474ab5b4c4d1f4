package httpapi

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	errx "github.com/logicshop-core/server/internal/core/error"
	"github.com/logicshop-core/server/internal/shop/catalog"
	"github.com/logicshop-core/server/internal/shop/model"
)

type userView struct {
	ID               string     `json:"id"`
	Balance          float64    `json:"balance"`
	Tier             model.Tier `json:"tier"`
	TransactionLimit float64    `json:"transactionLimit"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type balanceResponse struct {
	Balance          float64    `json:"balance"`
	Tier             model.Tier `json:"tier"`
	TransactionLimit float64    `json:"transactionLimit"`
}

// purchaseBody is the raw purchase payload. productId is left untyped so the
// matching policy decides how to read it.
type purchaseBody struct {
	ProductID  any    `json:"productId"`
	Quantity   any    `json:"quantity"`
	CouponCode string `json:"couponCode"`
}

type purchaseResponse struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	TransactionID string  `json:"transactionId"`
	NewBalance    float64 `json:"newBalance"`
	Flag          string  `json:"flag,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "preset": s.proc.Policy().Name})
}

func (s *Server) handleLogin(c *gin.Context) {
	sess, user, err := s.proc.Login(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token: sess.Token,
		User: userView{
			ID:               user.ID,
			Balance:          user.Balance,
			Tier:             user.Tier,
			TransactionLimit: user.TransactionLimit,
		},
	})
}

func (s *Server) handleBalance(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, balanceResponse{
		Balance:          user.Balance,
		Tier:             user.Tier,
		TransactionLimit: user.TransactionLimit,
	})
}

func (s *Server) handleProducts(c *gin.Context) {
	c.JSON(http.StatusOK, s.proc.Products())
}

func (s *Server) handlePurchase(c *gin.Context) {
	req, err := s.decodePurchase(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	receipt, err := s.proc.Purchase(c.Request.Context(), c.GetHeader(SessionHeader), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchaseResponse{
		Success:       true,
		Message:       receipt.Message(),
		TransactionID: receipt.TransactionID,
		NewBalance:    receipt.NewBalance,
		Flag:          receipt.Flag,
	})
}

func (s *Server) decodePurchase(c *gin.Context) (model.PurchaseRequest, error) {
	var body purchaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return model.PurchaseRequest{}, errx.Reject(errx.KindBadRequest, err)
	}

	productID, err := catalog.ResolveProductID(body.ProductID, s.proc.Policy().Match)
	if err != nil {
		return model.PurchaseRequest{}, errx.Reject(errx.KindBadRequest, err)
	}
	quantity, err := parseQuantity(body.Quantity)
	if err != nil {
		return model.PurchaseRequest{}, errx.Reject(errx.KindBadRequest, err)
	}

	return model.PurchaseRequest{
		ProductID:  productID,
		Quantity:   quantity,
		CouponCode: body.CouponCode,
	}, nil
}

// parseQuantity accepts an integral JSON number; an absent quantity means one.
// The sign is left for the quantity policy to judge.
func parseQuantity(raw any) (int, error) {
	if raw == nil {
		return 1, nil
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("quantity must be a number, got %T", raw)
	}
	q, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("quantity must be an integer: %w", err)
	}
	if q > math.MaxInt32 || q < math.MinInt32 {
		return 0, fmt.Errorf("quantity %d out of range", q)
	}
	return int(q), nil
}
