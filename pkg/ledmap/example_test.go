package ledmap_test

import (
	"fmt"

	"github.com/fkcurrie/matricks-golang/pkg/ledmap"
)

func Example() {
	// A 3x2 panel wired as one strip that zigzags across the rows
	m, err := ledmap.Build(3, 2, ledmap.Wiring{Serpentine: true})
	if err != nil {
		fmt.Printf("Failed to build map: %v\n", err)
		return
	}

	for _, row := range m.Table() {
		fmt.Println(row)
	}
	fmt.Println(m.Get(0, 0))
	// Output:
	// [2 1 0]
	// [3 4 5]
	// 2
}
