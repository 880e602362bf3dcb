package keymeter

import (
	"context"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	healthuc "github.com/keymeterhq/keymeter/internal/usecase/health"
	keysuc "github.com/keymeterhq/keymeter/internal/usecase/keys"
)

// --- keysUseCase mock ---

type mockKeysUC struct {
	addFn         func(ctx context.Context, secret string) (domcred.Credential, error)
	importFn      func(ctx context.Context, secrets []string) (keysuc.ImportSummary, error)
	deleteFn      func(ctx context.Context, id string) error
	batchDeleteFn func(ctx context.Context, ids []string) (keysuc.DeleteSummary, error)
	listFn        func(ctx context.Context) ([]domcred.Credential, error)
	countFn       func(ctx context.Context) (int, error)
}

func (m *mockKeysUC) Add(ctx context.Context, secret string) (domcred.Credential, error) {
	return m.addFn(ctx, secret)
}

func (m *mockKeysUC) Import(ctx context.Context, secrets []string) (keysuc.ImportSummary, error) {
	return m.importFn(ctx, secrets)
}

func (m *mockKeysUC) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockKeysUC) BatchDelete(ctx context.Context, ids []string) (keysuc.DeleteSummary, error) {
	return m.batchDeleteFn(ctx, ids)
}

func (m *mockKeysUC) List(ctx context.Context) ([]domcred.Credential, error) {
	return m.listFn(ctx)
}

func (m *mockKeysUC) Count(ctx context.Context) (int, error) {
	return m.countFn(ctx)
}

// --- reportUseCase mock ---

type mockReportUC struct {
	getFn       func(ctx context.Context) (domreport.Report, error)
	recomputeFn func(ctx context.Context) (domreport.Report, error)
	refreshFn   func(ctx context.Context, id string) (domreport.Result, error)
}

func (m *mockReportUC) GetReport(ctx context.Context) (domreport.Report, error) {
	return m.getFn(ctx)
}

func (m *mockReportUC) Recompute(ctx context.Context) (domreport.Report, error) {
	return m.recomputeFn(ctx)
}

func (m *mockReportUC) RefreshOne(ctx context.Context, id string) (domreport.Result, error) {
	return m.refreshFn(ctx, id)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	checkFn func(ctx context.Context) healthuc.Report
}

func (m *mockHealthUC) Check(ctx context.Context) healthuc.Report {
	return m.checkFn(ctx)
}

// --- helpers ---

func testClient(keys keysUseCase, reports reportUseCase) *Client {
	return &Client{keySvc: keys, reportSvc: reports}
}
