package ads

import (
	"strconv"
	"strings"
)

// firstLocationSegment returns the text before the first comma
func firstLocationSegment(location string) string {
	seg, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(seg)
}

// propertyTitle renders "{bedrooms}BHK {propertyType} in {firstLocationSegment}"
func propertyTitle(in *PropertyInput, location string) string {
	var b strings.Builder
	if in.Bedrooms > 0 {
		b.WriteString(strconv.Itoa(in.Bedrooms))
		b.WriteString("BHK ")
	}
	b.WriteString(in.PropertyType)
	if seg := firstLocationSegment(location); seg != "" {
		b.WriteString(" in ")
		b.WriteString(seg)
	}
	return b.String()
}

// vehicleTitle renders "{modelName|Vehicle} {year} ({color})"
func vehicleTitle(modelName string, year int, color string) string {
	if modelName == "" {
		modelName = "Vehicle"
	}
	title := modelName
	if year > 0 {
		title += " " + strconv.Itoa(year)
	}
	if color = strings.TrimSpace(color); color != "" {
		title += " (" + color + ")"
	}
	return title
}
