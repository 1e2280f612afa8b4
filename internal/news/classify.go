package news

import "regexp"

type rule struct {
	category Category
	pattern  *regexp.Regexp
}

// rules are checked in order and the first match wins. Headlines often hit
// several classes ("Bitcoin miner files for IPO"), so the order is fixed.
var rules = []rule{
	{IPO, regexp.MustCompile(`(?i)\b(ipos?|initial public offerings?|goes public|going public|went public|public debut|market debut|trading debut|spacs?|direct listing|files? to list)\b`)},
	{Crypto, regexp.MustCompile(`(?i)\b(crypto|cryptocurrency|cryptocurrencies|bitcoin|btc|ethereum|ether|blockchain|stablecoins?|defi|nfts?|altcoins?|coinbase|binance|solana|xrp|dogecoin|tokens?)\b`)},
	{Economy, regexp.MustCompile(`(?i)\b(fed|federal reserve|fomc|powell|inflation|cpi|ppi|interest rates?|rate cuts?|rate hikes?|gdp|jobs report|payrolls|unemployment|jobless|recession|economy|economic|economists?|monetary policy|fiscal|tariffs?|central bank|ecb|treasury yields?|consumer spending)\b`)},
	{Markets, regexp.MustCompile(`(?i)(\bs&p\b|\b(dow|dow jones|nasdaq|russell 2000|wall street|stock market|stock markets|indexes|indices|futures|vix|sell-?off|bull market|bear market|market rally)\b)`)},
}

// Classify returns the category for a title and description, defaulting to Stocks.
func Classify(title, description string) Category {
	text := title + " " + description
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.category
		}
	}
	return Stocks
}
