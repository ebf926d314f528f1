package settlement

import (
	"context"
	"strings"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/uow"
	domainsettlement "rigshare/internal/domain/settlement"
	domainuser "rigshare/internal/domain/user"
)

const getSettlementKey = "settlement.get"

type GetSettlementQuery struct {
	Actor        policies.Actor
	SettlementID string
}

func (q GetSettlementQuery) Key() string                   { return getSettlementKey }
func (q GetSettlementQuery) Caller() policies.Actor        { return q.Actor }
func (q GetSettlementQuery) RequiredRole() domainuser.Role { return "" }

type GetSettlementHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetSettlementHandler) Handle(ctx context.Context, q GetSettlementQuery) (dto.Settlement, error) {
	const op = "settlement.get"
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Settlement{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	s, err := unit.Settlements().ByID(execCtx, domainsettlement.ID(strings.TrimSpace(q.SettlementID)))
	if err != nil {
		return dto.Settlement{}, classify(op, err)
	}
	if !q.Actor.IsAdmin() {
		if _, err := s.PartyOf(q.Actor.ID); err != nil {
			return dto.Settlement{}, apperr.Authorization(op, err)
		}
	}
	return dto.MapSettlement(s), nil
}

var _ queries.Handler[GetSettlementQuery, dto.Settlement] = (*GetSettlementHandler)(nil)
