// Package contracts defines the external collaborators the kernel core
// consumes (spec §6): paging, inode I/O, device nodes, and boot info. Real
// implementations (GDT/IDT/TSS/APIC bring-up, the VFS tree, PS/2/CGA/PCI/
// ramdisk drivers, ACPI parsing, the boot-time memory map) are explicitly
// out of scope for this repository (spec §1); this package only captures
// the contract shape so the core can be built, driven, and tested against
// fakes.
package contracts

import "github.com/Emment-Yamikani/xytheros-go/internal/kerr"

// PhysAddr is a physical address, identity-mapped by whatever arch layer
// implements Pager.
type PhysAddr uintptr

// VirtAddr is a kernel or user virtual address.
type VirtAddr uintptr

// Pager is the paging collaborator: mapping/unmapping ranges, mounting a
// physical page for temporary access (used by the frame allocator to zero
// HIGH/HOLE pages that aren't identity-mapped), and cross-domain copies.
type Pager interface {
	MapN(va VirtAddr, size uintptr, flags uint) kerr.Errno
	UnmapN(va VirtAddr, size uintptr) kerr.Errno
	Mount(p PhysAddr) (VirtAddr, kerr.Errno)
	Unmount(va VirtAddr) kerr.Errno
	MemcpyPV(dst VirtAddr, src PhysAddr, n uintptr) kerr.Errno
	MemcpyVP(dst PhysAddr, src VirtAddr, n uintptr) kerr.Errno
	MemcpyPP(dst, src PhysAddr, n uintptr) kerr.Errno
	TLBShootdown(pdbr PhysAddr, va VirtAddr)
	ActivePDBR() bool
}

// Inode is the file-backing collaborator a page cache reads through and
// writes through on a miss/flush.
type Inode interface {
	ReadAt(off int64, buf []byte) (int, kerr.Errno)
	WriteAt(off int64, buf []byte) (int, kerr.Errno)
	UpdateSize(newSize int64) kerr.Errno
	Size() int64
	// Lock/Unlock give the page cache the inode's own locking discipline;
	// the core never assumes a particular lock implementation.
	Lock()
	Unlock()
}

// DeviceKey identifies a device node by (major, minor), as biscuit's
// dev_t/common.D_* constants do.
type DeviceKey struct {
	Major int
	Minor int
}

// Device is the capability record (spec §9: function-pointer vtables become
// capability records) a character or block device exposes.
type Device interface {
	Open(key DeviceKey) kerr.Errno
	Close(key DeviceKey) kerr.Errno
	Read(key DeviceKey, off int64, buf []byte) (int, kerr.Errno)
	Write(key DeviceKey, off int64, buf []byte) (int, kerr.Errno)
	IOCtl(key DeviceKey, cmd uintptr, arg uintptr) (uintptr, kerr.Errno)
	GetInfo(key DeviceKey) (DeviceInfo, kerr.Errno)
}

// DeviceInfo is the subset of device metadata the core needs (block size,
// capacity); richer metadata lives entirely in the driver, out of scope.
type DeviceInfo struct {
	BlockSize uint
	Blocks    uint64
}

// MemoryMapEntry describes one firmware-reported physical range.
type MemoryMapEntry struct {
	Start PhysAddr
	Size  uintptr
	Usable bool
}

// BootInfo is the struct the boot-time collaborator hands the frame
// allocator: total memory, the memory map, loaded modules, and the kernel
// image's own footprint, plus a watermark bump allocator used only before
// the zone allocator is initialized.
type BootInfo struct {
	TotalMemory uintptr
	MemoryMap   []MemoryMapEntry
	Modules     []BootModule
	KernelBase  PhysAddr
	KernelSize  uintptr

	// Bump is a watermark allocator: it hands out successive physical
	// pages during the init window before zones exist. It is never used
	// after mem.InitZones returns.
	Bump func(size uintptr) (PhysAddr, kerr.Errno)
}

// BootModule is one boot-loader-provided blob (initrd, microcode, ...).
type BootModule struct {
	Name string
	Base PhysAddr
	Size uintptr
}
