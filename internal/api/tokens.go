package api

import (
	"context"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/oxx-labs/oxx-backend/internal/factory"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/pkg/types"
)

type createTokenRequest struct {
	Name                 string        `json:"name"`
	Symbol               string        `json:"symbol"`
	ContentURI           string        `json:"contentUri"`
	Creator              string        `json:"creator"`
	InitialMintRecipient *string       `json:"initialMintRecipient"`
	InitialMintAmount    *types.BigInt `json:"initialMintAmount"`
	VestingDuration      uint64        `json:"vestingDuration"`
	// Followers is checked against the eligibility policy when present.
	Followers *int64 `json:"followers"`
	// ProjectID links the new token to an existing project.
	ProjectID string `json:"projectId"`
}

type createTokenResponse struct {
	TokenAddress  string `json:"tokenAddress"`
	ProjectID     string `json:"projectId,omitempty"`
	ProjectLinked bool   `json:"projectLinked"`
}

func (h *Handler) CreateToken(c *gin.Context) {
	if !h.requireSigner(c) {
		return
	}
	var body createTokenRequest
	if err := bindJSON(c, &body); err != nil {
		h.fail(c, err)
		return
	}
	if body.Followers != nil {
		if err := h.Eligibility.Check(*body.Followers); err != nil {
			h.fail(c, err)
			return
		}
	}

	req := factory.TokenCreationRequest{
		Name:            body.Name,
		Symbol:          body.Symbol,
		ContentURI:      body.ContentURI,
		VestingDuration: body.VestingDuration,
	}
	if strings.TrimSpace(body.Creator) != "" {
		creator, err := parseAddress("creator", body.Creator)
		if err != nil {
			h.fail(c, err)
			return
		}
		req.Creator = creator
	}
	recipient, err := parseOptionalAddress("initialMintRecipient", body.InitialMintRecipient)
	if err != nil {
		h.fail(c, err)
		return
	}
	if recipient != nil {
		req.InitialMintRecipient = *recipient
	}
	req.InitialMintAmount = bigOrNil(body.InitialMintAmount)

	var project *projects.Project
	if body.ProjectID != "" {
		if project, err = h.Projects.Get(c.Request.Context(), body.ProjectID); err != nil {
			h.fail(c, err)
			return
		}
		req.ProjectID = project.ID
	}

	// Once submitted the creation is seen through even if the client goes away; the
	// adapter's confirmation timeout still bounds the wait.
	ctx := context.WithoutCancel(c.Request.Context())
	token, err := h.Creator.CreateToken(ctx, req, h.Signer)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := createTokenResponse{TokenAddress: token.Hex()}
	if project != nil {
		resp.ProjectID = project.ID
		project.TokenAddress = token.Hex()
		project.TokenSymbol = strings.TrimSpace(req.Symbol)
		if err := h.Projects.Save(ctx, project); err != nil {
			h.Logger.Error("Token created but project link failed",
				"project_id", project.ID,
				"token", token.Hex(),
				"error", err)
		} else {
			resp.ProjectLinked = true
		}
	}
	ok(c, http.StatusCreated, resp)
}

// ListTokens returns every factory token address, or full details with ?details=true.
func (h *Handler) ListTokens(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("details") == "true" {
		infos, err := h.Tokens.GetAllTokensWithDetails(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		ok(c, http.StatusOK, infos)
		return
	}

	tokens, err := h.Tokens.GetAllTokens(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	addresses := make([]string, 0, len(tokens))
	for _, token := range tokens {
		addresses = append(addresses, token.Hex())
	}
	ok(c, http.StatusOK, addresses)
}

func (h *Handler) GetToken(c *gin.Context) {
	token, err := parseAddress("address", c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	info, err := h.Tokens.GetTokenDetails(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, info)
}

func (h *Handler) GetTokenPrice(c *gin.Context) {
	token, err := parseAddress("address", c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	price, err := h.Tokens.GetTokenPrice(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"token": token.Hex(), "price": price})
}

func (h *Handler) GetBalance(c *gin.Context) {
	token, err := parseAddress("address", c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err := parseAddress("user", c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return
	}
	balance, err := h.Tokens.GetUserBalance(c.Request.Context(), token, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"token": token.Hex(), "user": user.Hex(), "balance": balance})
}

func bigOrNil(v *types.BigInt) *big.Int {
	if v == nil {
		return nil
	}
	return v.Int
}

func addressOrZero(addr *common.Address) common.Address {
	if addr == nil {
		return common.Address{}
	}
	return *addr
}
