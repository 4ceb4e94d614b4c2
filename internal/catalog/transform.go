package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/pkg/textutil"
)

// Image is a product or collection image
type Image struct {
	Src      string
	Alt      string
	Width    int
	Height   int
	Position int
}

// ToLiquid exposes the image to templates
func (i Image) ToLiquid() map[string]any {
	return map[string]any{
		"src": i.Src, "url": i.Src, "alt": i.Alt,
		"width": i.Width, "height": i.Height, "position": i.Position,
	}
}

// Variant is one purchasable option of a product
type Variant struct {
	ID             string
	Title          string
	SKU            string
	Price          int64
	CompareAtPrice int64
	Available      bool
	Options        []string
}

// ToLiquid exposes the variant to templates
func (v Variant) ToLiquid() map[string]any {
	opts := make([]any, len(v.Options))
	for i, o := range v.Options {
		opts[i] = o
	}
	return map[string]any{
		"id": v.ID, "title": v.Title, "sku": v.SKU,
		"price": v.Price, "compare_at_price": v.CompareAtPrice,
		"available": v.Available, "options": opts,
	}
}

// Product is a render-ready product
type Product struct {
	ID             string
	Handle         string
	Title          string
	Description    string
	Vendor         string
	Type           string
	Price          int64
	PriceMin       int64
	PriceMax       int64
	CompareAtPrice int64
	PriceFormatted string
	Images         []Image
	Variants       []Variant
	Tags           []string
	Available      bool
	URL            string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FeaturedImage returns the first image, if any
func (p Product) FeaturedImage() (Image, bool) {
	if len(p.Images) == 0 {
		return Image{}, false
	}
	return p.Images[0], true
}

// ToLiquid exposes the product to templates
func (p Product) ToLiquid() map[string]any {
	images := make([]any, len(p.Images))
	for i, img := range p.Images {
		images[i] = img.ToLiquid()
	}
	variants := make([]any, len(p.Variants))
	for i, v := range p.Variants {
		variants[i] = v.ToLiquid()
	}
	tags := make([]any, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = t
	}
	m := map[string]any{
		"id": p.ID, "handle": p.Handle, "title": p.Title,
		"description": p.Description, "content": p.Description,
		"vendor": p.Vendor, "type": p.Type,
		"price": p.Price, "price_min": p.PriceMin, "price_max": p.PriceMax,
		"price_varies":     p.PriceMin != p.PriceMax,
		"compare_at_price": p.CompareAtPrice,
		"price_formatted":  p.PriceFormatted,
		"images":           images,
		"variants":         variants,
		"tags":             tags,
		"available":        p.Available,
		"url":              p.URL,
		"created_at":       p.CreatedAt,
		"updated_at":       p.UpdatedAt,
	}
	if img, ok := p.FeaturedImage(); ok {
		m["featured_image"] = img.ToLiquid()
	}
	if len(p.Variants) > 0 {
		m["selected_or_first_available_variant"] = variants[firstAvailable(p.Variants)]
		m["first_available_variant"] = variants[firstAvailable(p.Variants)]
	}
	return m
}

func firstAvailable(vs []Variant) int {
	for i, v := range vs {
		if v.Available {
			return i
		}
	}
	return 0
}

// ProductURL builds a product link, nested under the collection when a
// collection handle is in context
func ProductURL(handle, collectionHandle string) string {
	if collectionHandle != "" {
		return "/collections/" + collectionHandle + "/products/" + handle
	}
	return "/products/" + handle
}

// CollectionURL builds a collection link
func CollectionURL(handle string) string {
	return "/collections/" + handle
}

// TransformProduct converts a stored product into its render-ready form
func TransformProduct(rec domain.ProductRecord, currency domain.CurrencyConfig, collectionHandle string) Product {
	handle := rec.Handle
	if handle == "" {
		handle = textutil.Handleize(rec.Title)
	}
	p := Product{
		ID:             rec.ID,
		Handle:         handle,
		Title:          rec.Title,
		Description:    rec.Description,
		Vendor:         rec.Vendor,
		Type:           rec.ProductType,
		Price:          rec.Price,
		CompareAtPrice: rec.CompareAtPrice,
		Images:         ParseImages(rec.Images),
		Variants:       ParseVariants(rec.Variants, rec.Price, decimalPlaces(currency)),
		Tags:           rec.Tags,
		Available:      rec.Available,
		URL:            ProductURL(handle, collectionHandle),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	for i := range p.Images {
		if p.Images[i].Alt == "" {
			p.Images[i].Alt = rec.Title
		}
	}
	p.PriceMin, p.PriceMax = p.Price, p.Price
	for i, v := range p.Variants {
		if i == 0 || v.Price < p.PriceMin {
			p.PriceMin = v.Price
		}
		if i == 0 || v.Price > p.PriceMax {
			p.PriceMax = v.Price
		}
	}
	if len(p.Variants) > 0 {
		p.Price = p.PriceMin
		inStock := false
		for _, v := range p.Variants {
			inStock = inStock || v.Available
		}
		p.Available = p.Available && inStock
	}
	p.PriceFormatted = liquid.FormatMoney(p.Price, currency)
	return p
}

// flexibleArray decodes a JSON array that may itself be JSON-encoded as a
// string. Anything else yields nil.
func flexibleArray(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	for i := 0; i < 2 && len(raw) > 0 && raw[0] == '"'; i++ {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = bytes.TrimSpace([]byte(s))
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// flexibleObject decodes a JSON object, unwrapping a string encoding
func flexibleObject(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = []byte(s)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// ParseImages accepts an array of URLs or of image objects, natively or
// JSON-encoded as a string
func ParseImages(raw json.RawMessage) []Image {
	items := flexibleArray(raw)
	out := make([]Image, 0, len(items))
	for _, item := range items {
		var src string
		if json.Unmarshal(item, &src) == nil && !strings.HasPrefix(strings.TrimSpace(src), "{") {
			if src != "" {
				out = append(out, Image{Src: src, Position: len(out) + 1})
			}
			continue
		}
		m := flexibleObject(item)
		if m == nil {
			continue
		}
		img := Image{
			Src:    firstString(m, "src", "url", "originalSrc"),
			Alt:    firstString(m, "alt", "altText"),
			Width:  int(number(m["width"])),
			Height: int(number(m["height"])),
		}
		if img.Src == "" {
			continue
		}
		img.Position = len(out) + 1
		out = append(out, img)
	}
	return out
}

// ParseVariants accepts an array of variant objects, natively or
// JSON-encoded. Prices are minor units; a decimal string is read as major
// units of a currency with dp decimal places.
func ParseVariants(raw json.RawMessage, fallbackPrice int64, dp int) []Variant {
	items := flexibleArray(raw)
	out := make([]Variant, 0, len(items))
	for i, item := range items {
		m := flexibleObject(item)
		if m == nil {
			continue
		}
		v := Variant{
			ID:             firstString(m, "id"),
			Title:          firstString(m, "title", "name"),
			SKU:            firstString(m, "sku"),
			Price:          fallbackPrice,
			CompareAtPrice: minorUnits(m["compare_at_price"], dp),
			Available:      true,
		}
		if v.ID == "" {
			v.ID = strconv.Itoa(i + 1)
		}
		if v.Title == "" {
			v.Title = "Default Title"
		}
		if p, ok := m["price"]; ok && p != nil {
			v.Price = minorUnits(p, dp)
		}
		if a, ok := m["available"].(bool); ok {
			v.Available = a
		} else if q, ok := m["inventory_quantity"]; ok {
			v.Available = number(q) > 0
		}
		for _, key := range []string{"option1", "option2", "option3"} {
			if o := firstString(m, key); o != "" {
				v.Options = append(v.Options, o)
			}
		}
		out = append(out, v)
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func minorUnits(v any, dp int) int64 {
	switch n := v.(type) {
	case float64:
		return int64(math.Round(n))
	case string:
		s := strings.TrimSpace(n)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		if strings.Contains(s, ".") {
			return int64(math.Round(f * math.Pow10(dp)))
		}
		return int64(math.Round(f))
	}
	return 0
}

// Collection is a render-ready collection
type Collection struct {
	ID          string
	Handle      string
	Title       string
	Description string
	Image       string
	SortOrder   string
	URL         string
}

// ToLiquid exposes the collection to templates
func (c Collection) ToLiquid() map[string]any {
	m := map[string]any{
		"id": c.ID, "handle": c.Handle, "title": c.Title,
		"description": c.Description, "sort_by": c.SortOrder, "url": c.URL,
	}
	if c.Image != "" {
		m["image"] = map[string]any{"src": c.Image, "url": c.Image, "alt": c.Title}
	}
	return m
}

// TransformCollection converts a stored collection into its render-ready form
func TransformCollection(rec domain.CollectionRecord) Collection {
	handle := rec.Handle
	if handle == "" {
		handle = textutil.Handleize(rec.Title)
	}
	return Collection{
		ID:          rec.ID,
		Handle:      handle,
		Title:       rec.Title,
		Description: rec.Description,
		Image:       rec.Image,
		SortOrder:   rec.SortOrder,
		URL:         CollectionURL(handle),
	}
}

// Page is a render-ready content page
type Page struct {
	ID             string
	Handle         string
	Title          string
	Content        string
	SEOTitle       string
	SEODescription string
	URL            string
	PublishedAt    time.Time
}

// ToLiquid exposes the page to templates
func (p Page) ToLiquid() map[string]any {
	return map[string]any{
		"id": p.ID, "handle": p.Handle, "title": p.Title,
		"content": p.Content, "url": p.URL, "published_at": p.PublishedAt,
	}
}

// TransformPage converts a stored page into its render-ready form
func TransformPage(rec domain.PageRecord) Page {
	handle := rec.Handle
	if handle == "" {
		handle = textutil.Handleize(rec.Title)
	}
	return Page{
		ID:             rec.ID,
		Handle:         handle,
		Title:          rec.Title,
		Content:        rec.Body,
		SEOTitle:       rec.SEOTitle,
		SEODescription: rec.SEODescription,
		URL:            "/pages/" + handle,
		PublishedAt:    rec.PublishedAt,
	}
}

// Link is one navigation entry
type Link struct {
	Title string
	URL   string
	Links []Link
}

// ToLiquid exposes the link to templates
func (l Link) ToLiquid() map[string]any {
	children := make([]any, len(l.Links))
	for i, c := range l.Links {
		children[i] = c.ToLiquid()
	}
	return map[string]any{
		"title": l.Title, "url": l.URL, "links": children,
		"handle": textutil.Handleize(l.Title), "levels": depth(l),
	}
}

func depth(l Link) int {
	d := 0
	for _, c := range l.Links {
		if cd := depth(c) + 1; cd > d {
			d = cd
		}
	}
	return d
}

// Menu is a render-ready navigation menu
type Menu struct {
	ID     string
	Handle string
	Title  string
	Links  []Link
}

// ToLiquid exposes the menu to templates as a linklist
func (m Menu) ToLiquid() map[string]any {
	links := make([]any, len(m.Links))
	for i, l := range m.Links {
		links[i] = l.ToLiquid()
	}
	return map[string]any{"id": m.ID, "handle": m.Handle, "title": m.Title, "links": links}
}

// TransformMenu converts a stored menu into its render-ready form
func TransformMenu(rec domain.MenuRecord) Menu {
	handle := rec.Handle
	if handle == "" {
		handle = textutil.Handleize(rec.Title)
	}
	return Menu{ID: rec.ID, Handle: handle, Title: rec.Title, Links: ParseLinks(rec.Items)}
}

// ParseLinks reads nested {title, url, items} entries. name/label, link/href
// and children/links are accepted as aliases.
func ParseLinks(raw json.RawMessage) []Link {
	items := flexibleArray(raw)
	out := make([]Link, 0, len(items))
	for _, item := range items {
		m := flexibleObject(item)
		if m == nil {
			continue
		}
		l := Link{
			Title: firstString(m, "title", "name", "label"),
			URL:   firstString(m, "url", "link", "href"),
		}
		if l.URL == "" {
			l.URL = "#"
		}
		for _, key := range []string{"items", "children", "links"} {
			if child, ok := m[key]; ok {
				b, _ := json.Marshal(child)
				l.Links = ParseLinks(b)
				break
			}
		}
		out = append(out, l)
	}
	return out
}

// LineItem is one line of a checkout
type LineItem struct {
	Title        string
	VariantTitle string
	Quantity     int
	Price        int64
	LinePrice    int64
	Image        string
}

// Checkout is a render-ready checkout session
type Checkout struct {
	ID        string
	Token     string
	Status    domain.CheckoutStatus
	Email     string
	LineItems []LineItem
	Subtotal  int64
	Shipping  int64
	Tax       int64
	Total     int64
	Currency  string
	ExpiresAt time.Time
}

// ToLiquid exposes the checkout to templates
func (c Checkout) ToLiquid() map[string]any {
	items := make([]any, len(c.LineItems))
	count := 0
	for i, li := range c.LineItems {
		items[i] = map[string]any{
			"title": li.Title, "variant_title": li.VariantTitle, "quantity": li.Quantity,
			"price": li.Price, "line_price": li.LinePrice, "image": li.Image,
		}
		count += li.Quantity
	}
	return map[string]any{
		"id": c.ID, "token": c.Token, "status": string(c.Status), "email": c.Email,
		"line_items": items, "item_count": count,
		"subtotal_price": c.Subtotal, "shipping_price": c.Shipping, "tax_price": c.Tax,
		"total_price": c.Total, "currency": c.Currency,
		"completed": c.Status == domain.CheckoutCompleted,
	}
}

// ValidCheckout reports whether a session may be shown: open and
// unexpired, or completed when rendering a confirmation
func ValidCheckout(s *domain.CheckoutSession, confirmation bool, now time.Time) bool {
	if s == nil || !now.Before(s.ExpiresAt) {
		return false
	}
	switch s.Status {
	case domain.CheckoutOpen:
		return true
	case domain.CheckoutCompleted:
		return confirmation
	}
	return false
}

// decimalPlaces is the minor unit scale of a store currency
func decimalPlaces(cfg domain.CurrencyConfig) int {
	if cfg.DecimalPlaces < 0 {
		return 2
	}
	return cfg.DecimalPlaces
}

// checkoutDecimals is the minor unit scale of a session currency, which
// may differ from the store's
func checkoutDecimals(code string, store domain.CurrencyConfig) int {
	if code == "" || strings.EqualFold(code, store.Code) {
		return decimalPlaces(store)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return decimalPlaces(store)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// TransformCheckout converts a stored session into its render-ready form.
// store is the currency of the store the session belongs to.
func TransformCheckout(s domain.CheckoutSession, store domain.CurrencyConfig) Checkout {
	c := Checkout{
		ID: s.ID, Token: s.Token, Status: s.Status, Email: s.Email,
		Subtotal: s.Subtotal, Shipping: s.Shipping, Tax: s.Tax, Total: s.Total,
		Currency: s.Currency, ExpiresAt: s.ExpiresAt,
	}
	dp := checkoutDecimals(s.Currency, store)
	for _, item := range flexibleArray(s.LineItems) {
		m := flexibleObject(item)
		if m == nil {
			continue
		}
		li := LineItem{
			Title:        firstString(m, "title", "name"),
			VariantTitle: firstString(m, "variant_title"),
			Quantity:     int(number(m["quantity"])),
			Price:        minorUnits(m["price"], dp),
			Image:        firstString(m, "image", "image_url"),
		}
		if li.Quantity <= 0 {
			li.Quantity = 1
		}
		li.LinePrice = li.Price * int64(li.Quantity)
		c.LineItems = append(c.LineItems, li)
	}
	return c
}
