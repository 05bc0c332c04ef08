package diag

import "fmt"

// Category identifies the subsystem that detected an error.
//
// The values are bit tags in the high byte of a flat 32-bit code; the low 24
// bits carry the category-local code. A flat code therefore always names
// exactly one category and one local code.
type Category uint32

const (
	CategoryAux    Category = 0x01000000
	CategoryImage  Category = 0x02000000
	CategoryVolume Category = 0x04000000
	CategoryFS     Category = 0x08000000
	CategoryHDB    Category = 0x10000000

	// LocalMask extracts the category-local part of a flat code.
	LocalMask uint32 = 0x00ffffff
)

// String returns the subsystem name used in fallback messages.
func (c Category) String() string {
	switch c {
	case CategoryAux:
		return "auxtools"
	case CategoryImage:
		return "imgtools"
	case CategoryVolume:
		return "mmtools"
	case CategoryFS:
		return "fstools"
	case CategoryHDB:
		return "hashtools"
	default:
		return fmt.Sprintf("category(%#x)", uint32(c))
	}
}

// Code is a category-local error code tagged with its category. Each
// subsystem has its own Code type so that codes cannot be mixed up between
// tables.
type Code interface {
	Category() Category
	Local() uint32
}

// Flat combines a code into the single 32-bit representation.
func Flat(c Code) uint32 {
	return uint32(c.Category()) | (c.Local() & LocalMask)
}

// AuxCode is a code of the auxiliary (general) category.
type AuxCode uint32

func (AuxCode) Category() Category { return CategoryAux }
func (c AuxCode) Local() uint32    { return uint32(c) }

const (
	AuxMalloc AuxCode = iota
)

// ImgCode is a code of the image category.
type ImgCode uint32

func (ImgCode) Category() Category { return CategoryImage }
func (c ImgCode) Local() uint32    { return uint32(c) }

const (
	ImgNoFile ImgCode = iota
	ImgOffset
	ImgUnkType
	ImgUnsupType
	ImgOpen
	ImgStat
	ImgSeek
	ImgRead
	ImgReadOff
	ImgLayers
	ImgMagic
	ImgWrite
)

// VolCode is a code of the volume (partition) category.
type VolCode uint32

func (VolCode) Category() Category { return CategoryVolume }
func (c VolCode) Local() uint32    { return uint32(c) }

const (
	VolUnkType VolCode = iota
	VolUnsupType
	VolRead
	VolMagic
	VolWalkRange
	VolBufSize
	VolBlkNum
)

// FSCode is a code of the filesystem category.
type FSCode uint32

func (FSCode) Category() Category { return CategoryFS }
func (c FSCode) Local() uint32    { return uint32(c) }

const (
	FSUnkType FSCode = iota
	FSUnsupType
	FSFuncUnsupp
	FSWalkRange
	FSRead
	FSArg
	FSBlkNum
	FSInumNum
	FSInodeCorrupt
	FSMagic
	FSFWalk
	FSWrite
	FSUnicode
	FSRecover
	FSGeneric
	FSCorrupt
)

// HDBCode is a code of the hash database category.
type HDBCode uint32

func (HDBCode) Category() Category { return CategoryHDB }
func (c HDBCode) Local() uint32    { return uint32(c) }

const (
	HDBUnkType HDBCode = iota
	HDBUnsupType
	HDBReadDB
	HDBReadIdx
	HDBArg
	HDBWrite
	HDBCreate
	HDBDelete
	HDBMissing
	HDBProc
	HDBOpen
	HDBCorrupt
)

// Description tables, indexed by category-local code. Append only: existing
// indices must never change meaning.
var (
	auxText = []string{
		"Insufficient memory",
	}

	imgText = []string{
		"Missing image file names",
		"Invalid image offset",
		"Cannot determine image type",
		"Unsupported image type",
		"Error opening image file",
		"Error stat(ing) image file",
		"Error seeking in image file",
		"Error reading image file",
		"Read offset too large for image file",
		"Invalid image format layer sequence",
		"Invalid magic value",
		"Error writing data",
	}

	volText = []string{
		"Cannot determine partiton type",
		"Unsupported partition type",
		"Error reading image file",
		"Invalid magic value",
		"Invalid walk range",
		"Invalid buffer size",
		"Invalid sector address",
	}

	fsText = []string{
		"Cannot determine file system type",
		"Unsupported file system type",
		"Function not supported",
		"Invalid walk range",
		"Error reading image file",
		"Invalid argument",
		"Invalid block address",
		"Invalid metadata address",
		"Error in metadata structure",
		"Invalid magic value",
		"Error extracting file from image",
		"Error writing data",
		"Error converting Unicode",
		"Error recovering deleted file",
		"General file system error",
		"File system is corrupt",
	}

	hdbText = []string{
		"Cannot determine hash database type",
		"Unsupported hash database type",
		"Error reading hash database file",
		"Error reading hash database index",
		"Invalid argument",
		"Error writing data",
		"Error creating file",
		"Error deleting file",
		"Missing file",
		"Error creating process",
		"Error opening file",
		"Corrupt hash database",
	}
)

func table(c Category) ([]string, bool) {
	switch c {
	case CategoryAux:
		return auxText, true
	case CategoryImage:
		return imgText, true
	case CategoryVolume:
		return volText, true
	case CategoryFS:
		return fsText, true
	case CategoryHDB:
		return hdbText, true
	default:
		return nil, false
	}
}

// Text returns the static description of a category-local code. Codes beyond
// the end of the category's table render as "<subsystem> error: <code>" so
// that new codes can be introduced before their text.
func Text(c Category, local uint32) string {
	texts, ok := table(c)
	if !ok {
		return fmt.Sprintf("Unknown Error: %d", uint32(c)|local)
	}
	if int(local) < len(texts) {
		return texts[local]
	}
	return fmt.Sprintf("%s error: %d", c, local)
}
