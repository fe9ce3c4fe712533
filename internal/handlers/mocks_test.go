package handlers

import (
	"context"
	"time"

	"github.com/ruralpay/microbank/internal/models"
	"github.com/ruralpay/microbank/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, accountNumber string) (int64, error) {
	args := m.Called(accountNumber)
	return args.Get(0).(int64), args.Error(1)
}

type MockPoster struct {
	mock.Mock
}

func (m *MockPoster) Post(ctx context.Context, req services.PostRequest) (*services.PostResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PostResult), args.Error(1)
}

type MockFixedDeposits struct {
	mock.Mock
}

func (m *MockFixedDeposits) OpenFixedDeposit(ctx context.Context, req services.OpenFixedDepositRequest) (*models.FixedDepositAccount, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FixedDepositAccount), args.Error(1)
}

func (m *MockFixedDeposits) GetFixedDeposit(ctx context.Context, fdID int64) (*models.FixedDepositAccount, error) {
	args := m.Called(fdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FixedDepositAccount), args.Error(1)
}

func (m *MockFixedDeposits) RunFdInterestAccrual(ctx context.Context, asOf time.Time, scopeBranchID *int64) (*services.AccrualSummary, error) {
	args := m.Called(asOf, scopeBranchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AccrualSummary), args.Error(1)
}

func (m *MockFixedDeposits) CloseMaturedFixedDeposits(ctx context.Context, asOf time.Time) (*services.MaturitySweepSummary, error) {
	args := m.Called(asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MaturitySweepSummary), args.Error(1)
}

type MockSavingsAccruals struct {
	mock.Mock
}

func (m *MockSavingsAccruals) RunSavingsInterestAccrual(ctx context.Context, period services.Period) (*services.AccrualSummary, error) {
	args := m.Called(period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AccrualSummary), args.Error(1)
}

func (m *MockSavingsAccruals) RetryFailedSavingsAccruals(ctx context.Context) (*services.AccrualSummary, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AccrualSummary), args.Error(1)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) InterestDistribution(ctx context.Context, filter services.ReportFilter) ([]models.InterestBucket, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InterestBucket), args.Error(1)
}
