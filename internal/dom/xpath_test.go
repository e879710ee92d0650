package dom_test

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexhaunt/promptq-cli/internal/dom"
)

const xpathFixture = `
	<html>
	<body>
		<header id="top">
			<h1>promptq</h1>
		</header>
		<main>
			<section class="thread">
				<article>A1</article><article>A2</article>
				<ol>
					<li>one</li>
					<li>two</li>
					<li id="pick">three</li>
				</ol>
			</section>
			<section class="thread"><article>A3</article></section>
		</main>
	</body>
	</html>
	`

func TestGenerateUniqueXPath(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(xpathFixture))
	require.NoError(t, err)

	tests := []struct {
		name          string
		targetXPath   string
		expectedXPath string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"Element with ID", "//header", `//*[@id='top']`},
		{"Child of ID element", "//h1", `//*[@id='top']/h1[1]`},
		// Use (//article)[index] to pick the nth article globally for the targetXPath
		{"Specific index", "(//article)[2]", "/html[1]/body[1]/main[1]/section[1]/article[2]"},
		{"Ambiguous classes", "(//section[@class='thread'])[2]/article", "/html[1]/body[1]/main[1]/section[2]/article[1]"},
		{"List item", "//ol/li[2]", "/html[1]/body[1]/main[1]/section[1]/ol[1]/li[2]"},
		{"List item with ID (Optimization)", "//li[@id='pick']", `//*[@id='pick']`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targetNode := htmlquery.FindOne(doc, tt.targetXPath)
			require.NotNil(t, targetNode, "Test setup error: target node not found with %s", tt.targetXPath)

			generatedXPath := dom.GenerateUniqueXPath(targetNode)
			assert.Equal(t, tt.expectedXPath, generatedXPath)

			// Verify that the generated XPath uniquely selects the original node
			verificationNode := htmlquery.FindOne(doc, generatedXPath)
			assert.Equal(t, targetNode, verificationNode, "Generated XPath did not select the original node")
		})
	}
}

func TestGenerateUniqueXPathQuotesIDs(t *testing.T) {
	// XPath 1.0 cannot escape quotes inside a literal; IDs containing an
	// apostrophe must come out in the concat() form and still round-trip.
	src := `<html><body><div id="it's"><button>go</button></div></body></html>`
	doc, err := htmlquery.Parse(strings.NewReader(src))
	require.NoError(t, err)

	targetNode := htmlquery.FindOne(doc, "//button")
	require.NotNil(t, targetNode)

	generatedXPath := dom.GenerateUniqueXPath(targetNode)
	assert.Equal(t, `//*[@id=concat('it', "'", 's')]/button[1]`, generatedXPath)
	assert.Equal(t, targetNode, htmlquery.FindOne(doc, generatedXPath))
}

func TestGenerateUniqueXPathNilNode(t *testing.T) {
	assert.Equal(t, "", dom.GenerateUniqueXPath(nil))
}
