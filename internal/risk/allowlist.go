package risk

import "strings"

// Closed, hand-curated sets. Classification must stay deterministic, so
// these are never loaded from config.

var verifiedMints = map[string]string{
	"So11111111111111111111111111111111111111112":  "wSOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
	"EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm": "WIF",
	"HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3": "PYTH",
	"jtojtomepa8beP8AuQc6eXt5FriJwfFMwQx2v2f9mCL":  "JTO",
	"rndrizKT3MK1iimdxRdWabcF7Zg7AR5T4nud4EkHBof":  "RNDR",
	"hntyVP6YFm1Hg25TN9WGLqM12b8TQmcknKrdu1oxWux":  "HNT",
}

var knownPrograms = map[string]string{
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  "SPL Token",
	"TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb":  "Token-2022",
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL": "Associated Token",
	"11111111111111111111111111111111":             "System Program",
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter v6",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca Whirlpool",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium AMM",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium CLMM",
	"srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX":  "OpenBook",
	"DjVE6JNiYqPL2QXyCUUh8rNjHrbz9hXHNYt99MQ59qw1": "Orca legacy",
}

var impersonatedSymbols = map[string]struct{}{
	"SOL": {}, "USDC": {}, "USDT": {}, "ETH": {}, "BTC": {}, "BONK": {},
	"JUP": {}, "WIF": {}, "PYTH": {}, "JTO": {}, "RNDR": {}, "HNT": {},
}

// IsVerifiedMint reports whether mint is on the verified-token allow-list.
func IsVerifiedMint(mint string) bool {
	_, ok := verifiedMints[mint]
	return ok
}

// IsKnownProgram reports whether addr is a well-known program.
func IsKnownProgram(addr string) bool {
	_, ok := knownPrograms[addr]
	return ok
}

// Impersonates reports whether symbol claims a well-known ticker while
// mint is not the genuine (verified) token.
func Impersonates(symbol, mint string) bool {
	if IsVerifiedMint(mint) {
		return false
	}
	_, ok := impersonatedSymbols[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// HasNonASCII reports characters outside printable ASCII (0x20-0x7E),
// the usual vehicle for lookalike spoofing.
func HasNonASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return true
		}
	}
	return false
}
