package release

import "slices"

// Kernel image names inside a release directory and on the root filesystem.
const (
	KernelPrimary = "bsd"
	KernelMP      = "bsd.mp"
	KernelRamdisk = "bsd.rd"
	// KernelSPSaved keeps the single-processor image when bsd is the MP kernel.
	KernelSPSaved = "bsd.sp"
)

//nolint:gochecknoglobals // Fixed list of platforms publishing bsd.mp.
var multiprocessorMachines = []string{
	"amd64", "arm64", "i386", "macppc", "octeon", "powerpc64", "riscv64", "sparc64",
}

// KernelBundle names the kernel images of a release.
type KernelBundle struct {
	// Primary is the single-processor kernel.
	Primary string
	// MP is the multiprocessor kernel, empty on platforms without one.
	MP string
	// Ramdisk is the install/upgrade ramdisk kernel.
	Ramdisk string
}

// KernelBundleFor returns the kernels published for machine.
func KernelBundleFor(machine string) KernelBundle {
	bundle := KernelBundle{
		Primary: KernelPrimary,
		Ramdisk: KernelRamdisk,
	}

	if slices.Contains(multiprocessorMachines, machine) {
		bundle.MP = KernelMP
	}

	return bundle
}

// HasMP reports whether the bundle carries a multiprocessor kernel.
func (b KernelBundle) HasMP() bool {
	return b.MP != ""
}

// Files lists the bundle images in fetch order: primary, MP, ramdisk.
func (b KernelBundle) Files() []string {
	files := []string{b.Primary}
	if b.HasMP() {
		files = append(files, b.MP)
	}

	return append(files, b.Ramdisk)
}
