package liquid

import (
	"strings"
	"sync"
	"testing"
)

func TestAssetCollectorDeduplicates(t *testing.T) {
	c := NewAssetCollector()
	c.AddStylesheet("/a.css")
	c.AddStylesheet("/a.css")
	c.AddInlineStyle(".x{}")
	c.AddInlineStyle("  .x{}  ")
	c.AddScript("/a.js")
	c.AddInlineScript("")

	if got := c.Len(); got != 3 {
		t.Fatalf("expected 3 distinct assets, got %d", got)
	}
	if n := strings.Count(c.HeadHTML(), "/a.css"); n != 1 {
		t.Errorf("stylesheet emitted %d times", n)
	}
}

func TestAssetCollectorConcurrentAdds(t *testing.T) {
	c := NewAssetCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddInlineStyle(".shared{}")
		}()
	}
	wg.Wait()
	if c.Len() != 1 {
		t.Fatalf("expected one asset after concurrent adds, got %d", c.Len())
	}
}

func TestInjectPlacesAssets(t *testing.T) {
	c := NewAssetCollector()
	c.AddInlineStyle(".a{}")
	c.AddInlineScript("go();")

	doc := "<html><head><title>t</title></HEAD><body><p>x</p></body></html>"
	out := c.Inject(doc)

	style := strings.Index(out, ".a{}")
	head := strings.Index(out, "</HEAD>")
	script := strings.Index(out, "go();")
	body := strings.Index(out, "</body>")
	if style < 0 || style > head {
		t.Errorf("style not injected before </head>: %s", out)
	}
	if script < 0 || script > body || script < head {
		t.Errorf("script not injected before </body>: %s", out)
	}
}

func TestInjectWithoutMarkers(t *testing.T) {
	c := NewAssetCollector()
	c.AddInlineStyle(".a{}")
	c.AddInlineScript("go();")

	out := c.Inject("<p>fragment</p>")
	if !strings.HasPrefix(out, "<style") {
		t.Errorf("expected styles prepended, got %s", out)
	}
	if !strings.HasSuffix(out, "</script>\n") {
		t.Errorf("expected scripts appended, got %s", out)
	}
}

func TestMergeKeepsOrder(t *testing.T) {
	a := NewAssetCollector()
	a.AddStylesheet("/first.css")
	b := NewAssetCollector()
	b.AddStylesheet("/second.css")
	b.AddStylesheet("/first.css")
	a.Merge(b)

	head := a.HeadHTML()
	if strings.Index(head, "/first.css") > strings.Index(head, "/second.css") {
		t.Errorf("merge reordered assets: %s", head)
	}
	if a.Len() != 2 {
		t.Errorf("expected 2 assets, got %d", a.Len())
	}
}
