// froth-extract runs the feature extractors on still images. One
// image yields the static descriptors; a second image adds the motion
// descriptors for the pair.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"github.com/frothvision/frothwatch/internal/log"
	"github.com/frothvision/frothwatch/pkg/features"
)

type output struct {
	Image string `json:"image"`
	features.Static
	Dynamic *features.Dynamic `json:"dynamic,omitempty"`
}

func main() {
	elapsed := flag.Float64("elapsed", 1.0, "seconds between the two images when computing motion")
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "usage: froth-extract [-elapsed seconds] image [next-image]")
		os.Exit(2)
	}
	log.Init("warn")

	img := gocv.IMRead(flag.Arg(0), gocv.IMReadColor)
	if img.Empty() {
		fmt.Fprintf(os.Stderr, "froth-extract: cannot read %s\n", flag.Arg(0))
		os.Exit(1)
	}
	defer img.Close()

	out := output{Image: flag.Arg(0), Static: features.ExtractAllStatic(img)}

	if flag.NArg() == 2 {
		next := gocv.IMRead(flag.Arg(1), gocv.IMReadColor)
		if next.Empty() {
			fmt.Fprintf(os.Stderr, "froth-extract: cannot read %s\n", flag.Arg(1))
			os.Exit(1)
		}
		defer next.Close()

		strategy := features.ResolveMotionStrategy()
		if strategy == nil {
			fmt.Fprintln(os.Stderr, "froth-extract: no keypoint detector in this OpenCV build")
			os.Exit(1)
		}
		defer strategy.Close()

		d := features.ExtractDynamic(strategy, img, next, *elapsed)
		out.Dynamic = &d
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "froth-extract: %v\n", err)
		os.Exit(1)
	}
}
