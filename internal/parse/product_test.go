package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rtparts/catalogd/internal/catalog"
)

const detailPage = `<html><body>
<div class="cat-breadcrumbs-text">
  <span typeof="v:Breadcrumb"><a href="/">Запчасти</a></span>
  <span typeof="v:Breadcrumb"><a href="/gaz">GAZ</a></span>
</div>
<div class="item-logo"><a href="/gaz"><img src="/img/gaz-logo.png"></a></div>
<h1 class="item-title">Фильтр масляный</h1>
<div class="item-title-article">Арт: FM-3110</div>
<div class="available-wrap">В наличии</div>
<div class="product__price-block_text1">1 250</div>
<div class="item-description-full">Масляный фильтр для двигателя.</div>
<div class="item-images-wrap">
  <a href="#"><img class="item-gallery-image" src="/img/fm-1.jpg"></a>
  <a href="#"><img class="item-gallery-image" src="/img/fm-2.jpg"></a>
</div>
</body></html>`

func TestExtractProduct(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p, err := ExtractProduct([]byte(detailPage), DefaultRules(), "GAZ", "Gazelle", "https://x/gaz/fm-3110", now)
	require.NoError(t, err)

	require.Equal(t, "Фильтр масляный", p.Title)
	require.Equal(t, "FM-3110", p.Article)
	require.Equal(t, "GAZ", p.Brand)
	require.Equal(t, "Gazelle", p.Model)
	require.Equal(t, "Масляный фильтр для двигателя.", p.Description)
	require.Equal(t, "Запчасти", p.Category)
	require.NotNil(t, p.Price)
	require.Equal(t, int64(1250), *p.Price)
	require.Equal(t, catalog.Available, p.Available)
	require.Equal(t, []string{"/img/gaz-logo.png", "/img/fm-1.jpg", "/img/fm-2.jpg"}, p.Images)
	require.Equal(t, "https://x/gaz/fm-3110", p.URL)
	require.Equal(t, now, p.LastVisited)
}

func TestExtractProductArticlePrefixVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cell string
		want string
	}{
		{name: "colon prefix", cell: "Арт: AB-1", want: "AB-1"},
		{name: "no colon", cell: "арт AB-2", want: "AB-2"},
		{name: "bare article", cell: "AB-3", want: "AB-3"},
		{name: "padded", cell: "  АРТ:   AB-4  ", want: "AB-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `<div class="item-title">T</div><div class="item-title-article">` + tt.cell + `</div>`
			p, err := ExtractProduct([]byte(body), DefaultRules(), "B", "M", "https://x/p", time.Now())
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Article)
		})
	}
}

func TestExtractProductMissingArticle(t *testing.T) {
	t.Parallel()

	body := `<div class="item-title">Lonely title</div>`
	_, err := ExtractProduct([]byte(body), DefaultRules(), "B", "M", "https://x/p", time.Now())
	require.ErrorIs(t, err, catalog.ErrNoArticle)
}

func TestExtractProductEmptyArticleCell(t *testing.T) {
	t.Parallel()

	body := `<div class="item-title">T</div><div class="item-title-article">Арт:</div>`
	_, err := ExtractProduct([]byte(body), DefaultRules(), "B", "M", "https://x/p", time.Now())
	require.ErrorIs(t, err, catalog.ErrNoArticle)
}

func TestExtractProductMissingTitle(t *testing.T) {
	t.Parallel()

	body := `<div class="item-title-article">AB-9</div>`
	_, err := ExtractProduct([]byte(body), DefaultRules(), "B", "M", "https://x/p", time.Now())
	require.ErrorIs(t, err, catalog.ErrNoTitle)
}

func TestExtractProductBestEffortFields(t *testing.T) {
	t.Parallel()

	body := `<div class="item-title">T</div><div class="item-title-article">AB-10</div>
	<div class="product__price-block_text1">договорная</div>`
	p, err := ExtractProduct([]byte(body), DefaultRules(), "B", "M", "https://x/p", time.Now())
	require.NoError(t, err)
	require.Empty(t, p.Description)
	require.Empty(t, p.Category)
	require.Nil(t, p.Price)
	require.Equal(t, catalog.NotAvailable, p.Available)
}

func TestExtractProductOnOrder(t *testing.T) {
	t.Parallel()

	body := `<div class="item-title">T</div><div class="item-title-article">AB-11</div>
	<div class="item-info-block"><div class="cat-item-list-prices-avail">Доступно под заказ</div></div>`
	p, err := ExtractProduct([]byte(body), DefaultRules(), "B", "M", "https://x/p", time.Now())
	require.NoError(t, err)
	require.Equal(t, catalog.OnOrder, p.Available)
}
