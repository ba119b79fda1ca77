package export

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Field is one labelled summary value printed above the tables.
type Field struct {
	Label string
	Value string
}

// Section is a titled table inside a report.
type Section struct {
	Heading string
	Data    Dataset
}

// Report is the renderer-neutral shape shared by every exporter.
type Report struct {
	Title    string
	Subtitle string
	Summary  []Field
	Sections []Section
}

// Renderer turns a Report into a downloadable artifact.
type Renderer interface {
	Render(report Report) ([]byte, error)
	ContentType() string
	Extension() string
}

// SectionColumn is the leading column flat exporters use to keep section membership.
const SectionColumn = "Section"

func flatten(report Report) Dataset {
	var headers []string
	seen := map[string]bool{}
	for _, section := range report.Sections {
		for _, h := range section.Data.Headers {
			if !seen[h] {
				seen[h] = true
				headers = append(headers, h)
			}
		}
	}
	out := Dataset{Headers: append([]string{SectionColumn}, headers...)}
	for _, section := range report.Sections {
		for _, row := range section.Data.Rows {
			record := make(map[string]string, len(row)+1)
			for k, v := range row {
				record[k] = v
			}
			record[SectionColumn] = section.Heading
			out.Rows = append(out.Rows, record)
		}
	}
	return out
}
