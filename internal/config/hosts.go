package config

// DefaultVideoHosts returns the domains whose pages are classified as
// videos. Subdomains match too.
func DefaultVideoHosts() []string {
	return []string{
		"youtube.com",
		"youtu.be",
		"vimeo.com",
		"dailymotion.com",
		"twitch.tv",
		"tiktok.com",
	}
}

// DefaultShopHosts returns the domains whose pages are classified as
// products.
func DefaultShopHosts() []string {
	return []string{
		"amazon.com",
		"ebay.com",
		"flipkart.com",
		"etsy.com",
		"aliexpress.com",
		"walmart.com",
	}
}
