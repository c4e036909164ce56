package mocks

//go:generate mockgen -destination=./mock_market.go -package=mocks github.com/meanrev-lab/pairtrader/internal/market Exchange,QuoteProvider
