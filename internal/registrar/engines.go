package registrar

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnrecognizedEngine is returned for engines outside the known families.
var ErrUnrecognizedEngine = errors.New("unrecognized engine")

type EngineFamily int

const (
	ModelingBatch EngineFamily = iota + 1
	CadConsole
	ParametricConsole
	BimConsole
)

func (f EngineFamily) String() string {
	switch f {
	case ModelingBatch:
		return "ModelingBatch"
	case CadConsole:
		return "CadConsole"
	case ParametricConsole:
		return "ParametricConsole"
	case BimConsole:
		return "BimConsole"
	}
	return "Unknown"
}

// EngineAttributes drive the activity definition for an engine family. The
// "{0}" placeholder in CommandLine is replaced by the app bundle name.
type EngineAttributes struct {
	CommandLine string
	Extension   string
	Script      string
}

var engineFamilies = map[EngineFamily]EngineAttributes{
	ModelingBatch: {
		CommandLine: `$(engine.path)\3dsmaxbatch.exe -sceneFile "$(args[inputFile].path)" "$(settings[script].path)"`,
		Extension:   "max",
		Script:      "da = dotNetClass('Autodesk.Forge.Sample.DesignAutomation.Max.RuntimeExecute')\nda.ModifyWindowWidthHeight()\n",
	},
	CadConsole: {
		CommandLine: `$(engine.path)\accoreconsole.exe /i "$(args[inputFile].path)" /al "$(appbundles[{0}].path)" /s "$(settings[script].path)"`,
		Extension:   "dwg",
		Script:      "UpdateParam\n",
	},
	ParametricConsole: {
		CommandLine: `$(engine.path)\InventorCoreConsole.exe /i "$(args[inputFile].path)" /al "$(appbundles[{0}].path)"`,
		Extension:   "ipt",
	},
	BimConsole: {
		CommandLine: `$(engine.path)\revitcoreconsole.exe /i "$(args[inputFile].path)" /al "$(appbundles[{0}].path)"`,
		Extension:   "rvt",
	},
}

// engineMarkers are checked in order against the engine id.
var engineMarkers = []struct {
	marker string
	family EngineFamily
}{
	{"3dsMax", ModelingBatch},
	{"AutoCAD", CadConsole},
	{"Inventor", ParametricConsole},
	{"Revit", BimConsole},
}

// FamilyOf classifies an engine id such as "Autodesk.AutoCAD+24_3".
func FamilyOf(engine string) (EngineFamily, error) {
	for _, m := range engineMarkers {
		if strings.Contains(engine, m.marker) {
			return m.family, nil
		}
	}
	return 0, errors.Wrapf(ErrUnrecognizedEngine, "%q", engine)
}

// AttributesOf returns the activity attributes for an engine id.
func AttributesOf(engine string) (EngineAttributes, error) {
	family, err := FamilyOf(engine)
	if err != nil {
		return EngineAttributes{}, err
	}
	return engineFamilies[family], nil
}
