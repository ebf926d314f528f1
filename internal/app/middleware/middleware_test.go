package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/uow"
)

type echoCommand struct {
	Value   string
	IdemKey string
	Auto    bool
}

func (c echoCommand) Key() string            { return "test.echo" }
func (c echoCommand) IdempotencyKey() string { return c.IdemKey }
func (c echoCommand) ResultPrototype() any   { return &echoResult{} }
func (c echoCommand) Autocommit() bool       { return c.Auto }

type echoResult struct {
	Value string `json:"value"`
	Calls int    `json:"calls"`
}

type memoryIdempotency struct {
	mu   sync.Mutex
	recs map[string]IdempotencyRecord
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	return rec, ok, nil
}

func (m *memoryIdempotency) Save(_ context.Context, rec IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.Key] = rec
	return nil
}

type fakeUnit struct {
	uow.UnitOfWork
	opts       uow.TxOptions
	committed  bool
	rolledBack bool
}

func (u *fakeUnit) Commit(context.Context) error   { u.committed = true; return nil }
func (u *fakeUnit) Rollback(context.Context) error { u.rolledBack = true; return nil }

type fakeFactory struct {
	units []*fakeUnit
}

func (f *fakeFactory) Begin(_ context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	u := &fakeUnit{opts: opts}
	f.units = append(f.units, u)
	return u, nil
}

func newEchoBus(fail *bool) (*commands.InMemoryBus, *int) {
	calls := 0
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[echoCommand, *echoResult](bus, "test.echo", commands.HandlerFunc[echoCommand, *echoResult](
		func(ctx context.Context, cmd echoCommand) (*echoResult, error) {
			if _, ok := uow.FromContext(ctx); !ok {
				return nil, uow.ErrUnitOfWorkMissing
			}
			calls++
			if fail != nil && *fail {
				return nil, errors.New("boom")
			}
			return &echoResult{Value: cmd.Value, Calls: calls}, nil
		}))
	return bus, &calls
}

func TestIdempotencyReplaysSuccess(t *testing.T) {
	base, calls := newEchoBus(nil)
	store := &memoryIdempotency{recs: map[string]IdempotencyRecord{}}
	factory := &fakeFactory{}
	bus := ChainCommands(base, Idempotency(store, nil), Transaction(factory, nil))

	first, err := commands.Dispatch[echoCommand, *echoResult](context.Background(), bus, echoCommand{Value: "a", IdemKey: "k1"})
	require.NoError(t, err)
	second, err := commands.Dispatch[echoCommand, *echoResult](context.Background(), bus, echoCommand{Value: "a", IdemKey: "k1"})
	require.NoError(t, err)

	require.Equal(t, 1, *calls)
	require.Equal(t, first.Calls, second.Calls)
	require.Len(t, factory.units, 1)
	require.True(t, factory.units[0].committed)
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	fail := true
	base, calls := newEchoBus(&fail)
	store := &memoryIdempotency{recs: map[string]IdempotencyRecord{}}
	factory := &fakeFactory{}
	bus := ChainCommands(base, Idempotency(store, nil), Transaction(factory, nil))

	_, err := bus.Dispatch(context.Background(), echoCommand{IdemKey: "k"})
	require.Error(t, err)
	require.True(t, factory.units[0].rolledBack)
	require.False(t, factory.units[0].committed)

	fail = false
	res, err := commands.Dispatch[echoCommand, *echoResult](context.Background(), bus, echoCommand{Value: "b", IdemKey: "k"})
	require.NoError(t, err)
	require.Equal(t, "b", res.Value)
	require.Equal(t, 2, *calls)
}

func TestTransactionHonoursAutocommit(t *testing.T) {
	base, _ := newEchoBus(nil)
	factory := &fakeFactory{}
	bus := ChainCommands(base, Transaction(factory, nil))

	_, err := bus.Dispatch(context.Background(), echoCommand{Auto: true})
	require.NoError(t, err)
	require.True(t, factory.units[0].opts.Autocommit)
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, any) error { return errors.New("denied") }

func TestAuthorizationRunsBeforeHandler(t *testing.T) {
	base, calls := newEchoBus(nil)
	bus := ChainCommands(base, Authorization(denyAll{}), Transaction(&fakeFactory{}, nil))
	_, err := bus.Dispatch(context.Background(), echoCommand{})
	require.EqualError(t, err, "denied")
	require.Zero(t, *calls)
}

type checkFunc func(ctx context.Context, message any) error

func (f checkFunc) Validate(ctx context.Context, message any) error  { return f(ctx, message) }
func (f checkFunc) Authorize(ctx context.Context, message any) error { return f(ctx, message) }

func TestValidationRejectsBeforeRoleCheckAndUnitOfWork(t *testing.T) {
	base, calls := newEchoBus(nil)
	factory := &fakeFactory{}
	var authorized int
	invalid := checkFunc(func(context.Context, any) error { return errors.New("value required") })
	counting := checkFunc(func(context.Context, any) error { authorized++; return nil })
	bus := ChainCommands(base, Validation(invalid), Authorization(counting), nil, Transaction(factory, nil))

	_, err := bus.Dispatch(context.Background(), echoCommand{})
	require.EqualError(t, err, "value required")
	require.Zero(t, authorized)
	require.Zero(t, *calls)
	require.Empty(t, factory.units)
}

func TestChainSkipsNilStages(t *testing.T) {
	base, calls := newEchoBus(nil)
	factory := &fakeFactory{}
	bus := ChainCommands(base, nil, Transaction(factory, nil), nil)

	res, err := commands.Dispatch[echoCommand, *echoResult](context.Background(), bus, echoCommand{Value: "x"})
	require.NoError(t, err)
	require.Equal(t, "x", res.Value)
	require.Equal(t, 1, *calls)
}

func TestDispatchNamesMismatchedResult(t *testing.T) {
	base, _ := newEchoBus(nil)
	bus := ChainCommands(base, Transaction(&fakeFactory{}, nil))

	_, err := commands.Dispatch[echoCommand, string](context.Background(), bus, echoCommand{})
	require.ErrorIs(t, err, commands.ErrResultType)
	require.Contains(t, err.Error(), "test.echo returned *middleware.echoResult")

	_, err = commands.Dispatch[echoCommand, *echoResult](context.Background(), nil, echoCommand{})
	require.ErrorIs(t, err, commands.ErrNilBus)
}

type pingQuery struct{}

func (pingQuery) Key() string { return "test.ping" }

func TestQueryGates(t *testing.T) {
	base := queries.NewInMemoryBus()
	queries.RegisterHandler[pingQuery, string](base, "test.ping", queries.HandlerFunc[pingQuery, string](
		func(context.Context, pingQuery) (string, error) { return "pong", nil }))

	allow := checkFunc(func(context.Context, any) error { return nil })
	bus := ChainQueries(base, QueryValidation(allow), QueryAuthorization(allow))
	out, err := queries.Ask[pingQuery, string](context.Background(), bus, pingQuery{})
	require.NoError(t, err)
	require.Equal(t, "pong", out)

	_, err = queries.Ask[pingQuery, int](context.Background(), bus, pingQuery{})
	require.ErrorIs(t, err, queries.ErrResultType)

	denied := ChainQueries(base, QueryAuthorization(denyAll{}))
	_, err = denied.Ask(context.Background(), pingQuery{})
	require.EqualError(t, err, "denied")
}
