package memcache_fx

import (
	"go.uber.org/fx"
	mem "moniqgw/pkg/memcache"
)

var Module = fx.Provide(provideTokenStore)

func provideTokenStore() mem.TokenStore {
	return mem.NewTokens()
}
