package composer

import (
	"fmt"
	"html"
	"strconv"
)

// SectionAttributes marks a section wrapper for the Theme Studio editor
func SectionAttributes(sectionID, sectionType string) string {
	return fmt.Sprintf(`data-studio-section-id="%s" data-studio-section-type="%s"`,
		html.EscapeString(sectionID), html.EscapeString(sectionType))
}

// BlockAttributes is what block.shopify_attributes renders in editor mode
func BlockAttributes(sectionID, blockID, blockType string) string {
	return fmt.Sprintf(`data-studio-block-id="%s" data-studio-block-type="%s" data-studio-section-id="%s"`,
		html.EscapeString(blockID), html.EscapeString(blockType), html.EscapeString(sectionID))
}

// EditorBridgeScript connects an editor-mode page to the Theme Studio:
// section clicks are posted to the parent frame and a reload message on
// the studio socket refreshes the preview. The editor token travels in
// the page's studio_token query parameter.
func EditorBridgeScript(storeID, socketPath string) string {
	return `<script data-studio-bridge>(function(){` +
		`var store=` + strconv.Quote(storeID) + `;` +
		`document.addEventListener("click",function(e){` +
		`var el=e.target.closest("[data-studio-section-id]");if(!el||!window.parent)return;` +
		`window.parent.postMessage({type:"studio:select",store:store,section:el.getAttribute("data-studio-section-id"),` +
		`block:el.getAttribute("data-studio-block-id")},"*");});` +
		`try{var proto=location.protocol==="https:"?"wss://":"ws://";` +
		`var tok=new URLSearchParams(location.search).get("studio_token")||"";` +
		`var ws=new WebSocket(proto+location.host+` + strconv.Quote(socketPath) +
		`+"?store="+encodeURIComponent(store)+"&token="+encodeURIComponent(tok));` +
		`ws.onmessage=function(m){try{var d=JSON.parse(m.data);if(d.type==="theme.updated")location.reload();}catch(_){}};` +
		`}catch(_){}})();</script>`
}
