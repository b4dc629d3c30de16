package normalize

import (
	"strings"

	"github.com/linkpipe/linkpipe/internal/domain"
)

// FallbackTitle is used when neither the resolver nor the captured
// context yields a usable product title.
const FallbackTitle = "Produto em destaque"

// placeholderTitle is the generic marketplace title some sources stamp on
// every share; it carries no information and is treated as absent.
const placeholderTitle = "Produto Shopee"

// Product is the normalized, composable view of one resolved link.
type Product struct {
	Title        string
	TitleSource  TitleSource
	Price        Price
	Image        string
	ImageSource  ImageSource
	Coupon       string
	Description  string
	AffiliateURL string
}

// TitleSource records where the chosen title came from.
type TitleSource string

const (
	TitleAPI      TitleSource = "api"
	TitleContext  TitleSource = "context"
	TitleText     TitleSource = "text"
	TitleFallback TitleSource = "fallback"
)

// ImageSource records where the chosen image came from.
type ImageSource string

const (
	ImageNone       ImageSource = ""
	ImageContext    ImageSource = "context"
	ImageAPI        ImageSource = "api"
	ImageAPIDataURI ImageSource = "api_base64"
)

// Normalize merges resolver metadata and captured context into a Product.
// Resolver data wins for title and description, context wins for the
// image (the captured thumbnail shows what the group actually saw).
func Normalize(meta domain.ResolvedMetadata, ctx domain.CapturedContext, affiliateURL string) Product {
	mined := MineContext(ctx)

	p := Product{
		Price:        NormalizePrice(meta.PriceCurrent, meta.PriceOriginal, mined.PriceFrom, mined.PriceTo),
		Coupon:       normalizeCoupon(meta.Coupon, mined.Coupon),
		Description:  normalizeDescription(meta, ctx),
		AffiliateURL: affiliateURL,
	}
	p.Title, p.TitleSource = normalizeTitle(meta, ctx)
	p.Image, p.ImageSource = normalizeImage(meta.Image, mined.Image)

	return p
}

func normalizeTitle(meta domain.ResolvedMetadata, ctx domain.CapturedContext) (string, TitleSource) {
	if t := strings.TrimSpace(meta.Title); t != "" {
		return t, TitleAPI
	}
	if t := strings.TrimSpace(ctx.Title); t != "" && t != placeholderTitle {
		return t, TitleContext
	}
	if t := firstUsableLine(ctx.Text); t != "" {
		return t, TitleText
	}
	return FallbackTitle, TitleFallback
}

func normalizeImage(apiImage, contextImage string) (string, ImageSource) {
	if strings.HasPrefix(contextImage, "data:image") {
		return contextImage, ImageContext
	}
	if strings.HasPrefix(apiImage, "http") {
		return apiImage, ImageAPI
	}
	if strings.HasPrefix(apiImage, "data:image") {
		return apiImage, ImageAPIDataURI
	}
	return "", ImageNone
}

func normalizeCoupon(apiCoupon, minedCoupon string) string {
	c := strings.TrimSpace(apiCoupon)
	if c == "" {
		c = strings.TrimSpace(minedCoupon)
	}
	return strings.ToUpper(c)
}

func normalizeDescription(meta domain.ResolvedMetadata, ctx domain.CapturedContext) string {
	if d := strings.TrimSpace(meta.AIDescription); d != "" {
		return d
	}
	if d := strings.TrimSpace(meta.Description); d != "" {
		return d
	}
	return strings.TrimSpace(ctx.Description)
}
