package triage

import "strings"

// appCategoryPrefixes maps an app-id prefix to its category. Prefixes are
// matched longest-first, so if two entries both prefix an id, the longer,
// more specific one decides its category.
var appCategoryPrefixes = map[string]Category{
	"com.microsoft.VSCode":   CategoryCode,
	"com.apple.dt.Xcode":     CategoryCode,
	"com.jetbrains.":         CategoryCode,
	"dev.zed.Zed":            CategoryCode,
	"com.googlecode.iterm2":  CategoryTerminal,
	"com.apple.Terminal":     CategoryTerminal,
	"net.kovidgoyal.kitty":   CategoryTerminal,
	"com.apple.iWork.Pages":  CategoryDoc,
	"com.microsoft.Word":     CategoryDoc,
	"notion.id":              CategoryDoc,
	"md.obsidian":            CategoryDoc,
	"com.apple.Notes":        CategoryDoc,
	"com.adobe.Photoshop":    CategoryCreative,
	"com.adobe.illustrator":  CategoryCreative,
	"com.figma.Desktop":      CategoryCreative,
	"com.apple.FinalCutPro":  CategoryCreative,
	"com.google.Chrome":      CategoryBrowser,
	"com.apple.Safari":       CategoryBrowser,
	"org.mozilla.firefox":    CategoryBrowser,
	"com.brave.Browser":      CategoryBrowser,
	"com.tinyspeck.slackmac": CategoryComms,
	"com.hnc.Discord":        CategoryComms,
	"com.apple.mail":         CategoryComms,
	"us.zoom.xos":            CategoryComms,
	"com.spotify.client":     CategoryMedia,
	"com.apple.Music":        CategoryMedia,
	"com.google.youtube":     CategoryMedia,
}

// categoryBonus is added to the heuristic importance score for the
// category's natural signal value (spec 4.5: "doc/creative +0.1").
var categoryBonus = map[Category]float64{
	CategoryDoc:      0.1,
	CategoryCreative: 0.1,
}

// ClassifyApp maps an app id to a Category via longest-prefix match,
// falling back to CategoryOther.
func ClassifyApp(appID string) Category {
	best := CategoryOther
	bestLen := -1
	for prefix, cat := range appCategoryPrefixes {
		if strings.HasPrefix(appID, prefix) && len(prefix) > bestLen {
			best = cat
			bestLen = len(prefix)
		}
	}
	return best
}

// Heuristic computes a TriageResult without calling a vision model, per
// spec 4.5's heuristic mode: importance = 0.2 + 0.6*diffScore +
// categoryBonus, clamped to >= 0.8 for an explicit transition.
func Heuristic(appID, windowTitle string, diffScore float64, isTransition bool) TriageResult {
	cat := ClassifyApp(appID)
	importance := 0.2 + 0.6*diffScore + categoryBonus[cat]
	if isTransition && importance < 0.8 {
		importance = 0.8
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return TriageResult{
		Category:    cat,
		Importance:  importance,
		HasText:     cat == CategoryDoc || cat == CategoryCode || cat == CategoryBrowser,
		HasDocument: cat == CategoryDoc,
		HasMedia:    cat == CategoryMedia,
		Description: windowTitle,
	}
}
