// Package stations names observatory codes and groups them into survey
// projects.
package stations

import "neodisc/internal/config"

// OtherProject is the project of any station not listed.
const OtherProject = "Others"

var builtinNames = map[string]string{
	"703": "Catalina",
	"G96": "Mt. Lemmon",
	"E12": "Siding Spring",
	"I52": "Mt. Lemmon-Steward",
	"V06": "CSS-Kuiper",
	"G84": "Mt. Lemmon SkyCenter",
	"V00": "Kitt Peak-Bok",
	"X05": "Rubin",
	"F51": "Pan-STARRS 1",
	"F52": "Pan-STARRS 2",
	"T05": "ATLAS-HKO",
	"T08": "ATLAS-MLO",
	"T03": "ATLAS-Sutherland",
	"M22": "ATLAS-El Sauce",
	"W68": "ATLAS-Río Hurtado",
	"R17": "ATLAS-TDO",
	"704": "LINEAR",
	"699": "LONEOS",
	"691": "Spacewatch",
	"291": "Spacewatch II",
	"644": "NEAT-Palomar",
	"608": "NEAT-Haleakala",
	"I41": "ZTF",
	"C51": "WISE/NEOWISE",
	"C57": "WISE/NEOWISE",
	"W84": "DECam",
	"U68": "SynTrack",
	"U74": "SynTrack 2",
}

// project groupings follow the CNEOS site definitions
var builtinProjects = map[string]string{
	"704": "LINEAR", "G45": "LINEAR", "P07": "LINEAR",
	"566": "NEAT", "608": "NEAT", "644": "NEAT",
	"691": "Spacewatch", "291": "Spacewatch",
	"699": "LONEOS",
	"703": "Catalina Survey", "E12": "Catalina Survey", "G96": "Catalina Survey",
	"I52": "Catalina Follow-up", "V06": "Catalina Follow-up", "G84": "Catalina Follow-up",
	"V00": "Bok NEO Survey",
	"F51": "Pan-STARRS", "F52": "Pan-STARRS",
	"C51": "NEOWISE", "C57": "NEOWISE",
	"T05": "ATLAS", "T07": "ATLAS", "T08": "ATLAS", "T03": "ATLAS",
	"M22": "ATLAS", "W68": "ATLAS", "R17": "ATLAS",
	"X05": "Rubin/LSST",
	"I41": "Other-US", "U68": "Other-US", "U74": "Other-US", "W84": "Other-US",
}

// Directory resolves station codes. The zero value knows nothing and falls
// back to the code itself.
type Directory struct {
	names    map[string]string
	projects map[string]string
}

// New returns the built-in directory with overrides applied on top.
func New(overrides map[string]config.StationOverride) Directory {
	d := Directory{
		names:    make(map[string]string, len(builtinNames)+len(overrides)),
		projects: make(map[string]string, len(builtinProjects)+len(overrides)),
	}
	for k, v := range builtinNames {
		d.names[k] = v
	}
	for k, v := range builtinProjects {
		d.projects[k] = v
	}
	for code, o := range overrides {
		if o.Name != "" {
			d.names[code] = o.Name
		}
		if o.Project != "" {
			d.projects[code] = o.Project
		}
	}
	return d
}

// Name returns the readable site name, or the code when unknown.
func (d Directory) Name(code string) string {
	if n, ok := d.names[code]; ok {
		return n
	}
	return code
}

// Project returns the survey project of a station.
func (d Directory) Project(code string) string {
	if p, ok := d.projects[code]; ok {
		return p
	}
	return OtherProject
}
