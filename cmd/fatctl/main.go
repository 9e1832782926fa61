// Command fatctl creates, checks, and inspects FAT12/16/32 disk images.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/device"
	"github.com/dargueta/fatcore/disks"
	"github.com/dargueta/fatcore/fs"
	"github.com/dargueta/fatcore/volume"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Create, check, and inspect FAT12/16/32 disk images",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create a brand-new FAT volume in an image file",
				Action:    formatImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "geometry", Usage: "predefined disks.DiskGeometry slug (the built-in table is empty, so every slug is rejected)"},
					&cli.Uint64Flag{Name: "sectors", Usage: "total sector count, overrides --geometry"},
					&cli.UintFlag{Name: "sector-size", Value: 512},
					&cli.IntFlag{Name: "fat-version", Value: 32, Usage: "12, 16, or 32"},
					&cli.StringFlag{Name: "label", Usage: "volume label"},
				},
			},
			{
				Name:      "fsck",
				Usage:     "Check a FAT volume for consistency",
				Action:    fsckImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "sector-size", Value: 512},
					&cli.Uint64Flag{Name: "sectors", Required: true, Usage: "total sector count on the image"},
				},
			},
			{
				Name:      "dump",
				Usage:     "List a directory's contents and the volume's free-space summary",
				Action:    dumpImage,
				ArgsUsage: "IMAGE_FILE [PATH]",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "sector-size", Value: 512},
					&cli.Uint64Flag{Name: "sectors", Required: true, Usage: "total sector count on the image"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openFlatFile(path string, sectorSize uint, sectorCount uint64) *device.Device {
	driver := device.NewFlatFileDriver(path, sectorSize, sectorCount)
	return device.New("flatfile", 0, driver)
}

func formatImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("format requires an IMAGE_FILE argument", 1)
	}

	sectorSize := uint16(c.Uint("sector-size"))
	sectors := c.Uint64("sectors")

	if slug := c.String("geometry"); slug != "" {
		geo, err := disks.GetPredefinedDiskGeometry(slug)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		sectorSize = uint16(geo.BitsPerAddressUnit * geo.AddressUnitsPerSector / 8)
		if sectors == 0 {
			sectors = uint64(geo.TotalDataTracks) * uint64(geo.Heads) * uint64(geo.SectorsPerTrack)
		}
	}
	if sectors == 0 {
		return cli.Exit("one of --geometry or --sectors is required", 1)
	}

	f, err := os.Create(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := f.Truncate(int64(sectors) * int64(sectorSize)); err != nil {
		f.Close()
		return cli.Exit(err.Error(), 1)
	}
	f.Close()

	dev := openFlatFile(path, uint(sectorSize), sectors)
	params := volume.FormatParams{
		Label:          c.String("label"),
		BytesPerSector: sectorSize,
		Version:        c.Int("fat-version"),
	}
	v, ferr := volume.Format(dev, uint(sectors), params, fatcore.MountFlagsAllowAll)
	if ferr != nil {
		return cli.Exit(ferr.Error(), 1)
	}
	defer v.Unmount()

	fmt.Printf("formatted FAT%d volume, %d bytes/sector, %d sectors\n", v.BootSector.FATVersion, sectorSize, sectors)
	return nil
}

func fsckImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("fsck requires an IMAGE_FILE argument", 1)
	}

	dev := openFlatFile(path, c.Uint("sector-size"), c.Uint64("sectors"))
	v, err := volume.Mount(dev, -1, fatcore.MountFlagsAllowAll)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer v.Unmount()

	if cerr := v.Check(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
		return cli.Exit("volume failed consistency check", 1)
	}
	fmt.Println("no inconsistencies found")
	return nil
}

func dumpImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("dump requires an IMAGE_FILE argument", 1)
	}
	target := c.Args().Get(1)
	if target == "" {
		target = "/"
	}

	dev := openFlatFile(path, c.Uint("sector-size"), c.Uint64("sectors"))
	v, err := volume.Mount(dev, -1, fatcore.MountFlagsAllowAll)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer v.Unmount()

	stat, serr := v.FSStat()
	if serr != nil {
		return cli.Exit(serr.Error(), 1)
	}
	fmt.Printf("%d/%d blocks free (%d bytes/block)\n", stat.BlocksFree, stat.TotalBlocks, stat.BlockSize)

	fsys := fs.NewFileSystem(v, 8, 8)
	entries, derr := fsys.ReadDir(target)
	if derr != nil {
		return cli.Exit(derr.Error(), 1)
	}
	for _, e := range entries {
		kind := "-"
		if e.IsDir() {
			kind = "d"
		}
		info, _ := e.Info()
		fmt.Printf("%s %10d  %s\n", kind, info.Size(), e.Name())
	}
	return nil
}
