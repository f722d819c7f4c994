package translator

import "walletgateway/gateway/walletrpc/wallettest"

type mockWallet = wallettest.Mock

var _ Wallet = (*wallettest.Mock)(nil)
