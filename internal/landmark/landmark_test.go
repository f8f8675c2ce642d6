package landmark

import (
	"go/parser"
	"go/token"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const epsilon = 1e-9

func TestHand_Distance(t *testing.T) {
	var hand Hand
	hand.Points[Wrist] = Point3D{X: 0.1, Y: 0.1}
	hand.Points[IndexTip] = Point3D{X: 0.4, Y: 0.5}

	if d := hand.Distance(Wrist, IndexTip); math.Abs(d-0.5) > epsilon {
		t.Errorf("Distance() = %f, want 0.5", d)
	}
	if d := hand.Distance(Wrist, Wrist); d != 0 {
		t.Errorf("Distance(self) = %f, want 0", d)
	}
	if d := hand.Distance(-1, NumLandmarks); !math.IsInf(d, 1) {
		t.Errorf("Distance(out of range) = %f, want +Inf", d)
	}
}

func TestHand_Translate(t *testing.T) {
	hand := OpenPalm(Right, 0.5, 0.8)
	moved := hand.Translate(0.1, -0.2)

	if math.Abs(moved.Points[Wrist].X-0.6) > epsilon || math.Abs(moved.Points[Wrist].Y-0.6) > epsilon {
		t.Errorf("wrist = %+v, want (0.6, 0.6)", moved.Points[Wrist])
	}
	if hand.Points[Wrist].X != 0.5 {
		t.Error("Translate modified the receiver")
	}
	if d1, d2 := hand.Distance(Wrist, MiddleTip), moved.Distance(Wrist, MiddleTip); math.Abs(d1-d2) > epsilon {
		t.Errorf("translation changed shape: %f vs %f", d1, d2)
	}
}

func TestFixtures(t *testing.T) {
	tips := []int{IndexTip, MiddleTip, PinkyTip}

	t.Run("fist tips are near the wrist", func(t *testing.T) {
		hand := Fist(Left, 0.2, 0.4)
		if hand.Handedness != Left {
			t.Errorf("handedness = %s", hand.Handedness)
		}
		for _, tip := range tips {
			if d := hand.Distance(Wrist, tip); d >= 0.2 {
				t.Errorf("tip %d distance %f, want < 0.2", tip, d)
			}
		}
	})

	t.Run("open palm tips are far from the wrist", func(t *testing.T) {
		hand := OpenPalm(Right, 0.6, 0.9)
		for _, tip := range tips {
			if d := hand.Distance(Wrist, tip); d < 0.2 {
				t.Errorf("tip %d distance %f, want >= 0.2", tip, d)
			}
		}
	})

	t.Run("wrist is placed at the requested point", func(t *testing.T) {
		hand := Fist(Right, 0.25, 0.75)
		w := hand.Points[Wrist]
		if math.Abs(w.X-0.25) > epsilon || math.Abs(w.Y-0.75) > epsilon {
			t.Errorf("wrist = %+v", w)
		}
	})
}

// The pose packages must stay buildable without cgo.
func TestPosePackagesAvoidGocv(t *testing.T) {
	for _, dir := range []string{".", "../hand", "../gesture"} {
		files, err := filepath.Glob(filepath.Join(dir, "*.go"))
		if err != nil {
			t.Fatal(err)
		}
		fset := token.NewFileSet()
		for _, file := range files {
			f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
			if err != nil {
				t.Fatalf("parse %s: %v", file, err)
			}
			for _, imp := range f.Imports {
				path, _ := strconv.Unquote(imp.Path.Value)
				if strings.HasPrefix(path, "gocv.io/") || strings.HasSuffix(path, "/internal/detector") {
					t.Errorf("%s imports %s", file, path)
				}
			}
		}
	}
}
