package main

import "text/template"

var markdownTemplate = template.Must(template.New("markdownTemplate").Parse(
	`
# {{ .Title }}
[Product Page]({{ .ProductPageURL }})

Category: {{ .Category }}

Price: {{ .PriceIncludingTax }} ({{ .PriceExcludingTax }} excl. tax)

Available: {{ .NumberAvailable }}

Rating: {{ .ReviewRating }}

![cover]({{ .ImageURL }})
{{ if ne .ProductDescription "" }}
> {{ .ProductDescription }}
{{ end }}
	`,
))
