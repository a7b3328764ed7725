package window

// stats aggregates the samples of one market at or after since.
type stats struct {
	trades        int
	notionalSum   float64
	uniqueWallets int
	priceRange    *float64 // nil with fewer than two prices
	earliestTS    int64
	latestTS      int64

	topWallet         string
	topWalletNotional float64
	topWalletShare    *float64
	topWalletTrades   int
}

func computeStats(samples []Sample, since int64) stats {
	var st stats

	var minPrice, maxPrice float64
	notionalByWallet := make(map[string]float64)
	tradesByWallet := make(map[string]int)

	for _, s := range samples {
		if s.TS < since {
			continue
		}
		if st.trades == 0 {
			minPrice, maxPrice = s.Price, s.Price
			st.earliestTS, st.latestTS = s.TS, s.TS
		} else {
			if s.Price < minPrice {
				minPrice = s.Price
			}
			if s.Price > maxPrice {
				maxPrice = s.Price
			}
			if s.TS < st.earliestTS {
				st.earliestTS = s.TS
			}
			if s.TS > st.latestTS {
				st.latestTS = s.TS
			}
		}

		st.trades++
		st.notionalSum += s.Notional
		notionalByWallet[s.Wallet] += s.Notional
		tradesByWallet[s.Wallet]++
	}

	st.uniqueWallets = len(notionalByWallet)

	if st.trades >= 2 {
		r := maxPrice - minPrice
		st.priceRange = &r
	}

	for wallet, sum := range notionalByWallet {
		if sum > st.topWalletNotional || (sum == st.topWalletNotional && wallet < st.topWallet) {
			st.topWallet = wallet
			st.topWalletNotional = sum
		}
	}
	if st.topWallet != "" {
		st.topWalletTrades = tradesByWallet[st.topWallet]
		if st.notionalSum > 0 {
			share := st.topWalletNotional / st.notionalSum
			st.topWalletShare = &share
		}
	}

	return st
}
